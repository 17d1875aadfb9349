package rank

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Aman-CERP/ftscore/internal/query"
)

// ExactnessRule prefers documents where the match is exact (no typo,
// prefix, or split-word involved), using exact_word_docids (spec §4.4.2
// "Exactness"). A document's cost is the count of query terms it matched
// only through a non-exact variant (typo, prefix-only, or split); exact
// matches cost nothing.
type ExactnessRule struct{}

func (ExactnessRule) Name() string { return "exactness" }

func (ExactnessRule) Buckets(ctx *Context, candidates *roaring.Bitmap) ([]*roaring.Bitmap, error) {
	if candidates.IsEmpty() {
		return nil, nil
	}
	costs := map[uint32]int{}
	it := candidates.Iterator()
	for it.HasNext() {
		costs[it.Next()] = 0
	}

	for _, n := range ctx.Graph.TermNodes() {
		exact, err := exactBitmap(ctx, n.Term)
		if err != nil {
			return nil, err
		}
		matched, err := termBitmap(ctx, n.Term)
		if err != nil {
			return nil, err
		}
		inexact := roaring.AndNot(matched, exact)
		inexact.And(candidates)
		bit := inexact.Iterator()
		for bit.HasNext() {
			costs[bit.Next()]++
		}
	}

	return groupByAscendingCost(candidates, costs), nil
}

// exactBitmap unions exact_word_docids for every zero-typo, non-synonym
// variant of t (a phrase's words are always exact by construction, since
// BuildTerms only ever gives a phrase a single zero-typo-cost variant).
func exactBitmap(ctx *Context, t *query.QueryTerm) (*roaring.Bitmap, error) {
	out := roaring.New()
	words := t.PhraseWords
	if !t.IsPhrase {
		for _, v := range t.Variants {
			if v.TypoCost == 0 && !v.IsSynonym {
				words = append(words, v.Word)
			}
		}
	}
	for _, w := range words {
		bm, err := ctx.Env.ExactWordDocids().Get(ctx.Tx, []byte(w))
		if err != nil {
			return nil, err
		}
		if bm != nil {
			out.Or(bm)
		}
	}
	return out, nil
}
