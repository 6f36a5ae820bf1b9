package search

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// subjectSource feeds upper-cased subject codes to the fuzzy matcher.
type subjectSource []string

func (s subjectSource) String(i int) string { return strings.ToUpper(s[i]) }
func (s subjectSource) Len() int            { return len(s) }

// SuggestSubjects ranks subject codes against a partially typed fragment.
// An empty fragment returns the first limit subjects unchanged; limit <= 0
// means no limit.
func SuggestSubjects(fragment string, subjects []string, limit int) []string {
	fragment = strings.ToUpper(strings.TrimSpace(fragment))
	var out []string
	if fragment == "" {
		out = append(out, subjects...)
	} else {
		for _, m := range fuzzy.FindFrom(fragment, subjectSource(subjects)) {
			out = append(out, subjects[m.Index])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
