// Package query implements C4, the query pipeline: query term construction
// with typo/prefix/synonym/split-word/n-gram expansion, the query graph,
// the filter grammar, the ranking-rule cascade, and match formatting.
package query

import (
	"sort"

	"github.com/blevesearch/vellum"
)

// Lexicon wraps the persisted words FST (spec §3.2 `words_fst`) for the
// existence, prefix, and typo lookups query term construction needs (spec
// §4.4.1). A nil/empty FST (freshly created index) answers every lookup
// negatively rather than erroring.
type Lexicon struct {
	fst *vellum.FST
}

// NewLexicon loads a words FST from its serialized bytes. Empty data is a
// valid, always-empty lexicon.
func NewLexicon(data []byte) (*Lexicon, error) {
	if len(data) == 0 {
		return &Lexicon{}, nil
	}
	fst, err := vellum.Load(data)
	if err != nil {
		return nil, err
	}
	return &Lexicon{fst: fst}, nil
}

// Contains reports whether word is an indexed word.
func (l *Lexicon) Contains(word string) bool {
	if l == nil || l.fst == nil {
		return false
	}
	_, hit, err := l.fst.Get([]byte(word))
	return err == nil && hit
}

// HasPrefix reports whether any indexed word starts with prefix (spec
// §4.4.1 "use_prefix_db flag if the last token is a non-separator-terminated
// prefix").
func (l *Lexicon) HasPrefix(prefix string) bool {
	if l == nil || l.fst == nil || prefix == "" {
		return false
	}
	it, err := l.fst.Iterator([]byte(prefix), prefixUpperBound(prefix))
	if err != nil {
		return false
	}
	defer it.Close()
	return true
}

// FuzzyMatch is one indexed word within an edit-distance budget of a query
// term.
type FuzzyMatch struct {
	Word     string
	Distance int
}

// FuzzyMatches scans the FST's sorted key space for every indexed word
// within maxEdits of word (spec §4.4.1 "one-typo variants ... two-typo
// variants"). The FST has no fuzzy-search entry point of its own, so this
// walks the whole key space and scores each candidate with a direct edit
// distance computation; acceptable at this engine's in-memory vocabulary
// scale, the same tradeoff the indexing side already makes for prefix
// postings recomputation.
func (l *Lexicon) FuzzyMatches(word string, maxEdits int) []FuzzyMatch {
	if l == nil || l.fst == nil || maxEdits <= 0 {
		return nil
	}
	it, err := l.fst.Iterator(nil, nil)
	if err != nil {
		return nil
	}
	defer it.Close()

	var out []FuzzyMatch
	for {
		k, _ := it.Current()
		candidate := string(k)
		if d := levenshtein(word, candidate); d <= maxEdits {
			out = append(out, FuzzyMatch{Word: candidate, Distance: d})
		}
		if it.Next() != nil {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Word < out[j].Word
	})
	return out
}

func prefixUpperBound(prefix string) []byte {
	b := []byte(prefix)
	out := append([]byte{}, b...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			m := prev[j] + 1
			if v := cur[j-1] + 1; v < m {
				m = v
			}
			if v := prev[j-1] + cost; v < m {
				m = v
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}
