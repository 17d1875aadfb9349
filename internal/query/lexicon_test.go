package query

import (
	"bytes"
	"sort"
	"testing"

	"github.com/blevesearch/vellum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildLexicon(t *testing.T, words ...string) *Lexicon {
	t.Helper()
	sorted := append([]string(nil), words...)
	sort.Strings(sorted)

	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	require.NoError(t, err)
	for i, w := range sorted {
		require.NoError(t, builder.Insert([]byte(w), uint64(i)))
	}
	require.NoError(t, builder.Close())

	lex, err := NewLexicon(buf.Bytes())
	require.NoError(t, err)
	return lex
}

func TestNewLexiconEmptyDataIsAlwaysEmpty(t *testing.T) {
	lex, err := NewLexicon(nil)
	require.NoError(t, err)
	assert.False(t, lex.Contains("anything"))
	assert.False(t, lex.HasPrefix("any"))
}

func TestLexiconContains(t *testing.T) {
	lex := buildLexicon(t, "quick", "brown", "fox")
	assert.True(t, lex.Contains("fox"))
	assert.False(t, lex.Contains("dog"))
}

func TestLexiconHasPrefix(t *testing.T) {
	lex := buildLexicon(t, "quick", "quickly", "brown")
	assert.True(t, lex.HasPrefix("quic"))
	assert.False(t, lex.HasPrefix("zz"))
}

func TestLexiconFuzzyMatchesWithinBudget(t *testing.T) {
	lex := buildLexicon(t, "fox", "box", "foxes")
	matches := lex.FuzzyMatches("fox", 1)

	words := map[string]int{}
	for _, m := range matches {
		words[m.Word] = m.Distance
	}
	assert.Contains(t, words, "fox")
	assert.Contains(t, words, "box")
	assert.NotContains(t, words, "foxes", "edit distance from fox to foxes is 2, over the budget of 1")
}
