// Package query splits a search box string into structured qualifiers
// ("subject:cs", "has:seats") and the free text left for fuzzy search.
package query

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Qualifier keys understood by the filters.
const (
	KeySubject = "subject"
	KeyLevel   = "level"
	KeyHas     = "has"
	KeyIs      = "is"
	KeyCredits = "credits"
)

// Keys lists every recognized qualifier key.
var Keys = []string{KeySubject, KeyLevel, KeyHas, KeyIs, KeyCredits}

// courseKeys are evaluated by the course filter, everything else by the
// section filter.
var courseKeys = map[string]bool{KeySubject: true, KeyLevel: true}

// UnboundedMax is the upper bound used for "N+" ranges.
const UnboundedMax = 1000.0

// Pair is one key:value qualifier.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Parsed is the result of Parse.
type Parsed struct {
	Pairs []Pair `json:"qualifiers"`
	Text  string `json:"text"`
}

var (
	qualifierRe   = regexp.MustCompile(`\w+:[\w+\-.]+`)
	disallowedRe  = regexp.MustCompile(`[^a-z0-9" ]`)
	subjectCrseRe = regexp.MustCompile(`^([a-z]+)(\d+)$`)
)

// Parse lower-cases q, extracts qualifiers in order of appearance and cleans
// what remains into space separated search tokens. Tokens that look like a
// partially typed qualifier key are dropped, and "cs1000" style tokens are
// folded into a subject qualifier plus the bare number.
func Parse(q string) Parsed {
	lower := strings.ToLower(q)

	var out Parsed
	for _, m := range qualifierRe.FindAllString(lower, -1) {
		key, value, _ := strings.Cut(m, ":")
		out.Pairs = append(out.Pairs, Pair{Key: key, Value: value})
	}

	rest := qualifierRe.ReplaceAllString(lower, "")
	rest = disallowedRe.ReplaceAllString(rest, "")
	rest = strings.TrimSpace(rest)

	tokens := make([]string, 0)
	for _, tok := range strings.Fields(rest) {
		if isKeyFragment(tok) {
			continue
		}
		if m := subjectCrseRe.FindStringSubmatch(tok); m != nil {
			out.Pairs = append(out.Pairs, Pair{Key: KeySubject, Value: m[1]})
			tok = m[2]
		}
		tokens = append(tokens, tok)
	}
	out.Text = strings.Join(tokens, " ")
	return out
}

// isKeyFragment is deliberately loose: any token contained in a key name
// ("sub", "is", "e") is treated as a qualifier being typed.
func isKeyFragment(tok string) bool {
	for _, k := range Keys {
		if strings.Contains(k, tok) {
			return true
		}
	}
	return false
}

// IsCourseKey reports whether key is handled by the course filter.
func IsCourseKey(key string) bool { return courseKeys[key] }

// CoursePairs returns the qualifiers the course filter evaluates.
func (p Parsed) CoursePairs() []Pair {
	out := make([]Pair, 0, len(p.Pairs))
	for _, q := range p.Pairs {
		if courseKeys[q.Key] {
			out = append(out, q)
		}
	}
	return out
}

// SectionPairs returns every qualifier that is not a course qualifier.
func (p Parsed) SectionPairs() []Pair {
	out := make([]Pair, 0, len(p.Pairs))
	for _, q := range p.Pairs {
		if !courseKeys[q.Key] {
			out = append(out, q)
		}
	}
	return out
}

// Credits returns the range of the last credits: qualifier, if any.
func (p Parsed) Credits() (min, max float64, ok bool) {
	for i := len(p.Pairs) - 1; i >= 0; i-- {
		if p.Pairs[i].Key == KeyCredits {
			min, max = ParseRange(p.Pairs[i].Value)
			return min, max, true
		}
	}
	return 0, 0, false
}

// Empty reports whether the query carries neither text nor qualifiers.
func (p Parsed) Empty() bool { return p.Text == "" && len(p.Pairs) == 0 }

// ParseRange parses "3", "3-4" or "3+" into [min, max]. Unparseable parts
// come back as NaN, which never compares true.
func ParseRange(raw string) (min, max float64) {
	raw = strings.TrimSpace(raw)
	if strings.HasSuffix(raw, "+") {
		return parseNumber(strings.TrimSuffix(raw, "+")), UnboundedMax
	}
	if lo, hi, found := strings.Cut(raw, "-"); found {
		return parseNumber(lo), parseNumber(hi)
	}
	n := parseNumber(raw)
	return n, n
}

// LeadingInt parses the leading digits of s ("2010L" -> 2010), NaN when s
// does not start with a digit.
func LeadingInt(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return math.NaN()
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return math.NaN()
	}
	return float64(n)
}

func parseNumber(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
