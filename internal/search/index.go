package search

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

const (
	// Tokens longer than this that are not numeric may differ from an
	// indexed term by one edit.
	fuzzyMinLen   = 4
	fuzzyDistance = 1

	exactWeight  = 1.0
	prefixWeight = 0.5
	fuzzyWeight  = 0.3
)

// Field is one indexed document attribute with its score multiplier.
type Field struct {
	Name  string
	Boost float64
}

// Hit is a scored document reference.
type Hit struct {
	Ref   string
	Score float64
}

type posting struct {
	doc   int
	field int
	tf    int
}

// Index is an immutable inverted index. Build it with IndexBuilder and share
// it freely between goroutines.
type Index struct {
	fields   []Field
	refs     []string
	postings map[string][]posting
	terms    []string
	byLen    map[int][]string
	prefix   bool
}

// IndexBuilder collects documents for a new Index.
type IndexBuilder struct {
	fields []Field
	prefix bool
	refs   []string
	docs   [][]string
}

// NewIndexBuilder starts an index over fields. With prefix set every query
// token also matches terms it is a prefix of.
func NewIndexBuilder(prefix bool, fields ...Field) *IndexBuilder {
	return &IndexBuilder{fields: fields, prefix: prefix}
}

// Add appends a document; values line up with the builder's fields.
func (b *IndexBuilder) Add(ref string, values ...string) {
	vals := make([]string, len(b.fields))
	copy(vals, values)
	b.refs = append(b.refs, ref)
	b.docs = append(b.docs, vals)
}

// Build freezes the collected documents.
func (b *IndexBuilder) Build() *Index {
	idx := &Index{
		fields:   b.fields,
		refs:     append([]string(nil), b.refs...),
		postings: make(map[string][]posting),
		byLen:    make(map[int][]string),
		prefix:   b.prefix,
	}
	for doc, vals := range b.docs {
		for field, v := range vals {
			counts := make(map[string]int)
			order := make([]string, 0)
			for _, tok := range Tokenize(v) {
				if counts[tok] == 0 {
					order = append(order, tok)
				}
				counts[tok]++
			}
			for _, tok := range order {
				idx.postings[tok] = append(idx.postings[tok], posting{doc: doc, field: field, tf: counts[tok]})
			}
		}
	}
	idx.terms = make([]string, 0, len(idx.postings))
	for term := range idx.postings {
		idx.terms = append(idx.terms, term)
	}
	sort.Strings(idx.terms)
	for _, term := range idx.terms {
		n := len([]rune(term))
		idx.byLen[n] = append(idx.byLen[n], term)
	}
	return idx
}

// Len is the number of indexed documents.
func (idx *Index) Len() int { return len(idx.refs) }

// Tokenize lower-cases s and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Search scores every document matching at least one token. Hits are sorted
// by descending score; ties keep document order.
func (idx *Index) Search(tokens []string) []Hit {
	if idx == nil || len(idx.refs) == 0 {
		return nil
	}
	scores := make([]float64, len(idx.refs))
	seen := make([]bool, len(idx.refs))

	for _, raw := range tokens {
		for _, tok := range Tokenize(raw) {
			for term, weight := range idx.expand(tok) {
				idf := math.Log(1 + float64(len(idx.refs))/float64(docFreq(idx.postings[term])))
				for _, p := range idx.postings[term] {
					scores[p.doc] += idx.fields[p.field].Boost * weight * idf * float64(p.tf)
					seen[p.doc] = true
				}
			}
		}
	}

	hits := make([]Hit, 0)
	for doc, ok := range seen {
		if ok {
			hits = append(hits, Hit{Ref: idx.refs[doc], Score: scores[doc]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits
}

// expand maps a query token to the indexed terms it matches and the weight
// of each match kind. The best weight wins when a term matches several ways.
// Summation order over the returned map does not affect the per-document
// score beyond float rounding, and documents are visited in index order.
func (idx *Index) expand(tok string) map[string]float64 {
	out := make(map[string]float64)
	put := func(term string, w float64) {
		if w > out[term] {
			out[term] = w
		}
	}

	if _, ok := idx.postings[tok]; ok {
		put(tok, exactWeight)
	}

	if idx.prefix {
		i := sort.SearchStrings(idx.terms, tok)
		for ; i < len(idx.terms) && strings.HasPrefix(idx.terms[i], tok); i++ {
			put(idx.terms[i], prefixWeight)
		}
	}

	n := len([]rune(tok))
	if n > fuzzyMinLen && !isNumeric(tok) {
		for l := n - fuzzyDistance; l <= n+fuzzyDistance; l++ {
			for _, term := range idx.byLen[l] {
				if levenshtein.ComputeDistance(tok, term) <= fuzzyDistance {
					put(term, fuzzyWeight)
				}
			}
		}
	}
	return out
}

func docFreq(ps []posting) int {
	n, last := 0, -1
	for _, p := range ps {
		if p.doc != last {
			n++
			last = p.doc
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
