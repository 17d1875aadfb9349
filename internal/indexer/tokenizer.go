// Package indexer implements C3, the indexing pipeline: primary-key
// resolution, docid assignment, parallel extraction of postings/facets
// from changed documents, merge-and-write against C2, and the
// post-processing passes (FST maintenance, prefix postings, facet levels).
// This package does not extract or index vectors and builds no
// facet-search FST.
package indexer

import (
	"strings"
	"unicode"
)

// Tokenizer splits field text into lowercased terms honouring the index's
// configured separator tokens, non-separator tokens, dictionary, and stop
// words (spec §4.3.2 step 4 "Tokenises searchable fields"). It reuses the
// teacher's identifier-splitting rules (camelCase/snake_case/acronym
// splitting) generalized to arbitrary document text, since the teacher's
// own code-search tokenizer already draws the same token boundaries a
// generic word tokenizer needs for compound terms.
type Tokenizer struct {
	separators    map[rune]struct{}
	nonSeparators map[rune]struct{}
	dictionary    map[string]struct{}
	stopWords     map[string]struct{}
	minTokenLen   int
}

// defaultSeparators are treated as token boundaries unless overridden by
// non-separator-token settings (spec §4.2 "separator tokens, non-separator
// tokens").
var defaultSeparators = " \t\n\r.,;:!?()[]{}<>\"'`~@#$%^&*+=|\\/"

// NewTokenizer builds a tokenizer from the index's current settings.
func NewTokenizer(separatorTokens, nonSeparatorTokens, dictionary, stopWords []string) *Tokenizer {
	seps := make(map[rune]struct{})
	for _, r := range defaultSeparators {
		seps[r] = struct{}{}
	}
	for _, tok := range separatorTokens {
		for _, r := range tok {
			seps[r] = struct{}{}
		}
	}

	nonSeps := make(map[rune]struct{})
	for _, tok := range nonSeparatorTokens {
		for _, r := range tok {
			nonSeps[r] = struct{}{}
			delete(seps, r)
		}
	}

	dict := make(map[string]struct{}, len(dictionary))
	for _, d := range dictionary {
		dict[strings.ToLower(d)] = struct{}{}
	}

	stop := make(map[string]struct{}, len(stopWords))
	for _, s := range stopWords {
		stop[strings.ToLower(s)] = struct{}{}
	}

	return &Tokenizer{
		separators:    seps,
		nonSeparators: nonSeps,
		dictionary:    dict,
		stopWords:     stop,
		minTokenLen:   1,
	}
}

// Token is one tokenised, normalised occurrence with its position.
type Token struct {
	Term     string
	Position uint16 // relative position within the field (spec §3.1 "Position")
}

// Tokenize splits text on separators, then checks each resulting word
// against the dictionary (a dictionary word is kept whole) before falling
// back to identifier sub-splitting, and drops configured stop words. A
// dictionary entry that itself contains a separator never matches.
func (t *Tokenizer) Tokenize(text string) []Token {
	raw := t.splitOnSeparators(text)

	var out []Token
	var pos uint16
	for _, word := range raw {
		lower := strings.ToLower(word)
		if _, isDict := t.dictionary[lower]; isDict {
			if _, stop := t.stopWords[lower]; !stop {
				out = append(out, Token{Term: lower, Position: pos})
				pos++
			}
			continue
		}

		for _, sub := range splitIdentifier(word) {
			l := strings.ToLower(sub)
			if len(l) < t.minTokenLen {
				continue
			}
			if _, stop := t.stopWords[l]; stop {
				continue
			}
			out = append(out, Token{Term: l, Position: pos})
			pos++
		}
	}
	return out
}

// TokenSpan is one whole separator-delimited word together with its byte
// offsets in the original text. Unlike Token/Tokenize, it does not apply
// identifier sub-splitting (camelCase/snake_case): query-side match
// formatting (spec §4.4.4) highlights and crops at whole-word granularity
// against the displayed attribute's original bytes, so sub-word offsets
// would have to be stitched back together anyway. Stop words are not
// dropped and the dictionary is not consulted.
type TokenSpan struct {
	Term  string
	Start int
	End   int // exclusive byte offset
}

// TokenizeWithOffsets re-splits text the same way Tokenize does but keeps
// each whole word's byte span instead of expanding it into identifier
// sub-tokens, so callers can slice/highlight the original text directly
// (spec §4.4.4 "re-tokenising the displayed attribute").
func (t *Tokenizer) TokenizeWithOffsets(text string) []TokenSpan {
	var out []TokenSpan
	start := -1
	for i, r := range text {
		_, isSep := t.separators[r]
		_, isNonSep := t.nonSeparators[r]
		if isSep && !isNonSep {
			if start >= 0 {
				out = append(out, spanAt(text, start, i))
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, spanAt(text, start, len(text)))
	}
	return out
}

func spanAt(text string, start, end int) TokenSpan {
	return TokenSpan{Term: strings.ToLower(text[start:end]), Start: start, End: end}
}

func (t *Tokenizer) splitOnSeparators(text string) []string {
	var words []string
	var cur strings.Builder
	for _, r := range text {
		if _, isSep := t.separators[r]; isSep {
			if _, nonSep := t.nonSeparators[r]; !nonSep {
				if cur.Len() > 0 {
					words = append(words, cur.String())
					cur.Reset()
				}
				continue
			}
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return words
}

// splitIdentifier splits camelCase, PascalCase, and snake_case identifiers
// into sub-tokens, e.g. "getUserById" -> ["get", "User", "By", "Id"].
func splitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// NGrams aggregates adjacent terms into 2-gram and 3-gram phrases with base
// typo costs of 1 and 2 respectively (spec §4.4.1 "n-gram aggregations").
func NGrams(tokens []Token, n int) []Token {
	if n < 2 || len(tokens) < n {
		return nil
	}
	out := make([]Token, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		var parts []string
		for j := 0; j < n; j++ {
			parts = append(parts, tokens[i+j].Term)
		}
		out = append(out, Token{Term: strings.Join(parts, ""), Position: tokens[i].Position})
	}
	return out
}
