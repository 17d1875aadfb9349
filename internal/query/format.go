package query

import (
	"strings"

	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/indexer"
)

// MatchPosition is one located match, in byte offsets against the original
// displayed-attribute text (spec §4.4.5 "_matchesPosition").
type MatchPosition struct {
	Start  int
	Length int
}

// FormatOptions carries the per-request crop/highlight configuration
// (spec §6.2 cropLength/cropMarker/highlightPreTag/highlightPostTag).
type FormatOptions struct {
	CropLength        int
	CropMarker        string
	HighlightPreTag   string
	HighlightPostTag  string
}

// DefaultFormatOptions mirrors the spec's stated defaults for crop/highlight
// markers when a request doesn't override them.
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{
		CropLength:       10,
		CropMarker:       "…",
		HighlightPreTag:  "<em>",
		HighlightPostTag: "</em>",
	}
}

// MatchWords collects every literal word that should count as a match for
// highlight/crop purposes: every term variant (including typo variants,
// which the spec still treats as a match, just a costlier one) and every
// phrase/split word.
func MatchWords(terms []QueryTerm) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range terms {
		if t.IsPhrase {
			for _, w := range t.PhraseWords {
				out[w] = struct{}{}
			}
			continue
		}
		for _, v := range t.Variants {
			out[v.Word] = struct{}{}
		}
		for _, w := range t.SplitWords {
			out[w] = struct{}{}
		}
	}
	return out
}

// Format re-tokenises attrText with the index's configured tokenizer,
// locates every token that is a member of matchWords, and returns the
// crop/highlight view of the text plus the raw match positions in the
// original text (spec §4.4.4). doCrop/doHighlight let the caller apply
// only what attributesToCrop/attributesToHighlight requested for this
// particular attribute.
func Format(attrText string, settings config.Settings, matchWords map[string]struct{}, opts FormatOptions, doCrop, doHighlight bool) (string, []MatchPosition) {
	tok := indexer.NewTokenizer(settings.SeparatorTokens, settings.NonSeparatorTokens, settings.Dictionary, settings.StopWords)
	spans := tok.TokenizeWithOffsets(attrText)

	matched := make([]bool, len(spans))
	var positions []MatchPosition
	for i, s := range spans {
		if _, ok := matchWords[s.Term]; ok {
			matched[i] = true
			positions = append(positions, MatchPosition{Start: s.Start, Length: s.End - s.Start})
		}
	}

	if len(spans) == 0 {
		return attrText, positions
	}

	from, to, cropped := 0, len(spans)-1, false
	if doCrop && opts.CropLength > 0 {
		if first, ok := firstMatchIndex(matched); ok {
			from, to = cropWindow(len(spans), first, opts.CropLength)
			cropped = from > 0 || to < len(spans)-1
		}
	}

	out := buildOutput(attrText, spans, matched, from, to, opts, doHighlight, cropped)
	return out, positions
}

func firstMatchIndex(matched []bool) (int, bool) {
	for i, m := range matched {
		if m {
			return i, true
		}
	}
	return 0, false
}

// cropWindow picks an inclusive [from, to] span index range covering up to
// cropLength tokens, centred on the first match (spec §4.4.4 "crop keeps a
// window of cropLength tokens centred on the match").
func cropWindow(n, center, cropLength int) (int, int) {
	half := cropLength / 2
	from := center - half
	if from < 0 {
		from = 0
	}
	to := from + cropLength - 1
	if to > n-1 {
		to = n - 1
		from = to - cropLength + 1
		if from < 0 {
			from = 0
		}
	}
	return from, to
}

func buildOutput(text string, spans []indexer.TokenSpan, matched []bool, from, to int, opts FormatOptions, doHighlight, cropped bool) string {
	sliceStart, sliceEnd := 0, len(text)
	if cropped {
		sliceStart, sliceEnd = spans[from].Start, spans[to].End
	}

	body := text[sliceStart:sliceEnd]
	if doHighlight {
		var b strings.Builder
		prev := sliceStart
		for i := from; i <= to; i++ {
			if !matched[i] {
				continue
			}
			s, e := spans[i].Start, spans[i].End
			b.WriteString(text[prev:s])
			b.WriteString(opts.HighlightPreTag)
			b.WriteString(text[s:e])
			b.WriteString(opts.HighlightPostTag)
			prev = e
		}
		b.WriteString(text[prev:sliceEnd])
		body = b.String()
	}

	if cropped {
		if from > 0 {
			body = opts.CropMarker + body
		}
		if to < len(spans)-1 {
			body = body + opts.CropMarker
		}
	}
	return body
}
