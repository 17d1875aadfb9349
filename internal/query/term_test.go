package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ftscore/internal/config"
)

func testQuerySettings() config.Settings {
	s := config.DefaultSettings()
	return s
}

func TestBuildTermsPlainWords(t *testing.T) {
	lex, err := NewLexicon(nil)
	require.NoError(t, err)

	terms := BuildTerms("quick fox", testQuerySettings(), lex)

	var words []string
	for _, term := range terms {
		if term.IsPhrase || len(term.Variants) == 0 {
			continue
		}
		words = append(words, term.Original)
	}
	assert.Contains(t, words, "quick")
	assert.Contains(t, words, "fox")
}

func TestBuildTermsQuotedPhraseProducesPhraseTerm(t *testing.T) {
	lex, err := NewLexicon(nil)
	require.NoError(t, err)

	terms := BuildTerms(`"brown fox"`, testQuerySettings(), lex)

	found := false
	for _, term := range terms {
		if term.IsPhrase {
			found = true
			assert.Equal(t, []string{"brown", "fox"}, term.PhraseWords)
		}
	}
	assert.True(t, found, "expected a phrase term for the quoted query")
}

func TestBuildTermsLastTokenUsesPrefixWhenNotIndexed(t *testing.T) {
	lex := buildLexicon(t, "quick", "quickstart")
	terms := BuildTerms("quic", testQuerySettings(), lex)
	require.Len(t, terms, 1)
	assert.True(t, terms[0].UsePrefixDB)
}

func TestBuildTermsTypoDisabledWordGetsNoFuzzyVariants(t *testing.T) {
	settings := testQuerySettings()
	settings.TypoTolerance.DisableOnWords = []string{"quick"}
	lex := buildLexicon(t, "quick", "quack")

	terms := BuildTerms("quick", settings, lex)
	require.Len(t, terms, 1)
	assert.Len(t, terms[0].Variants, 1, "typo tolerance disabled for this word should yield only the exact variant")
}

func TestMatchWordsCollectsVariantsAndPhraseWords(t *testing.T) {
	lex, err := NewLexicon(nil)
	require.NoError(t, err)
	terms := BuildTerms(`fox "brown dog"`, testQuerySettings(), lex)

	mw := MatchWords(terms)
	assert.Contains(t, mw, "fox")
	assert.Contains(t, mw, "brown")
	assert.Contains(t, mw, "dog")
}
