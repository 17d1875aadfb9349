package query

import (
	"strings"

	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/indexer"
)

// TermVariant is one way a query term can be satisfied by an indexed word
// (spec §4.4.1: exact match, typo variants, synonyms).
type TermVariant struct {
	Word     string
	TypoCost int
	IsSynonym bool
}

// QueryTerm is one tokenised input term (or phrase, or n-gram) together
// with every variant it may match against the index.
type QueryTerm struct {
	Original string
	// Position is the source-token position this term starts at (spec
	// §4.4.1 "edges respect source-string position ranges").
	Position int
	// Span is how many source token positions this term covers: 1 for a
	// plain word, len(PhraseWords) for a phrase, 2 or 3 for an n-gram.
	Span int

	IsPhrase    bool
	PhraseWords []string

	UsePrefixDB bool
	// SplitWords holds the two known words word concatenates to, when word
	// itself is unindexed but its split is (spec §4.4.1 "split-words").
	SplitWords []string

	Variants []TermVariant
}

// BuildTerms tokenises q with the index's configured tokenizer and expands
// each token into its typo/prefix/synonym/split-word variants, plus phrase
// groups for quoted text and n-gram aggregations of adjacent terms (spec
// §4.4.1).
func BuildTerms(q string, settings config.Settings, lex *Lexicon) []QueryTerm {
	phrases, rest := extractPhrases(q)
	tok := indexer.NewTokenizer(settings.SeparatorTokens, settings.NonSeparatorTokens, settings.Dictionary, settings.StopWords)
	tokens := tok.Tokenize(rest)

	terms := make([]QueryTerm, 0, len(tokens)+len(phrases)+len(tokens))

	for _, ph := range phrases {
		words := tok.Tokenize(ph)
		if len(words) == 0 {
			continue
		}
		pw := make([]string, len(words))
		for i, w := range words {
			pw[i] = w.Term
		}
		terms = append(terms, QueryTerm{
			Original:    ph,
			Position:    int(words[0].Position),
			Span:        len(pw),
			IsPhrase:    true,
			PhraseWords: pw,
			Variants:    []TermVariant{{Word: strings.Join(pw, " "), TypoCost: 0}},
		})
	}

	for i, t := range tokens {
		isLast := i == len(tokens)-1
		qt := QueryTerm{Original: t.Term, Position: int(t.Position), Span: 1}
		qt.Variants, qt.UsePrefixDB = expandVariants(t.Term, settings, lex, isLast)
		if a, b, ok := splitWordVariant(t.Term, lex); ok {
			qt.SplitWords = []string{a, b}
		}
		terms = append(terms, qt)
	}

	for _, ng := range indexer.NGrams(tokens, 2) {
		terms = append(terms, QueryTerm{
			Original: ng.Term, Position: int(ng.Position), Span: 2,
			Variants: []TermVariant{{Word: ng.Term, TypoCost: 1}},
		})
	}
	for _, ng := range indexer.NGrams(tokens, 3) {
		terms = append(terms, QueryTerm{
			Original: ng.Term, Position: int(ng.Position), Span: 3,
			Variants: []TermVariant{{Word: ng.Term, TypoCost: 2}},
		})
	}

	return terms
}

// expandVariants builds the zero/one/two-typo and synonym variants for one
// plain word, plus whether it should also be looked up as a prefix.
func expandVariants(word string, settings config.Settings, lex *Lexicon, isLast bool) ([]TermVariant, bool) {
	variants := []TermVariant{{Word: word, TypoCost: 0}}
	usePrefix := isLast && !lex.Contains(word) && lex.HasPrefix(word)

	if typoToleranceApplies(word, settings) {
		if budget := typoBudget(word, settings); budget >= 1 {
			for _, m := range lex.FuzzyMatches(word, budget) {
				if m.Distance == 0 {
					continue
				}
				variants = append(variants, TermVariant{Word: m.Word, TypoCost: m.Distance})
			}
		}
	}

	if syns, ok := settings.Synonyms[word]; ok {
		for _, s := range syns {
			variants = append(variants, TermVariant{Word: s, IsSynonym: true})
		}
	}

	return dedupeVariants(variants), usePrefix
}

func typoToleranceApplies(word string, settings config.Settings) bool {
	if !settings.TypoTolerance.Enabled {
		return false
	}
	for _, w := range settings.TypoTolerance.DisableOnWords {
		if w == word {
			return false
		}
	}
	return true
}

// typoBudget returns the maximum edit distance word is allowed, based on
// the configured minimum word sizes (spec §4.2 typo-tolerance knobs).
func typoBudget(word string, settings config.Settings) int {
	n := len([]rune(word))
	mw := settings.TypoTolerance.MinWordSizeForTypos
	if mw.TwoTypos > 0 && n >= mw.TwoTypos {
		return 2
	}
	if mw.OneTypo > 0 && n >= mw.OneTypo {
		return 1
	}
	return 0
}

func dedupeVariants(in []TermVariant) []TermVariant {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, ok := seen[v.Word]; ok {
			continue
		}
		seen[v.Word] = struct{}{}
		out = append(out, v)
	}
	return out
}

// splitWordVariant reports whether an unindexed word splits into two known
// words (spec §4.4.1 "concatenations recognised in the FST that split into
// two known words").
func splitWordVariant(word string, lex *Lexicon) (string, string, bool) {
	if lex == nil || lex.Contains(word) {
		return "", "", false
	}
	runes := []rune(word)
	for i := 1; i < len(runes); i++ {
		a, b := string(runes[:i]), string(runes[i:])
		if lex.Contains(a) && lex.Contains(b) {
			return a, b, true
		}
	}
	return "", "", false
}

// extractPhrases pulls every double-quoted substring out of q, returning
// the phrase contents and the remainder with phrases blanked out (so plain
// tokenisation doesn't see them twice).
func extractPhrases(q string) ([]string, string) {
	var phrases []string
	var rest strings.Builder
	var cur strings.Builder
	inQuote := false
	for _, r := range q {
		if r == '"' {
			if inQuote {
				phrases = append(phrases, cur.String())
				cur.Reset()
			}
			inQuote = !inQuote
			rest.WriteRune(' ')
			continue
		}
		if inQuote {
			cur.WriteRune(r)
		} else {
			rest.WriteRune(r)
		}
	}
	return phrases, rest.String()
}
