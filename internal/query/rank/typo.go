package rank

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Aman-CERP/ftscore/internal/query"
)

// TypoRule prefers documents whose matched variants sum to a smaller total
// edit distance across query terms, expanding from 0 typos upward (spec
// §4.4.2 "Typo"). A document's per-term cost is the cheapest variant that
// actually matched it; terms that matched via no variant contribute 0 (the
// Words rule already decided whether that term was required).
type TypoRule struct{}

func (TypoRule) Name() string { return "typo" }

func (TypoRule) Buckets(ctx *Context, candidates *roaring.Bitmap) ([]*roaring.Bitmap, error) {
	if candidates.IsEmpty() {
		return nil, nil
	}
	costs := map[uint32]int{}
	it := candidates.Iterator()
	for it.HasNext() {
		costs[it.Next()] = 0
	}

	for _, n := range ctx.Graph.TermNodes() {
		if n.Term.IsPhrase {
			continue // phrases carry a fixed zero-typo budget (spec §4.4.1)
		}
		variants := append([]query.TermVariant(nil), n.Term.Variants...)
		sort.Slice(variants, func(i, j int) bool { return variants[i].TypoCost < variants[j].TypoCost })

		remaining := candidates.Clone()
		for _, v := range variants {
			if remaining.IsEmpty() {
				break
			}
			bm, err := wordBitmap(ctx, v.Word, n.Term.UsePrefixDB && v.TypoCost == 0)
			if err != nil {
				return nil, err
			}
			bm.And(remaining)
			bit := bm.Iterator()
			for bit.HasNext() {
				d := bit.Next()
				costs[d] += v.TypoCost
			}
			remaining.AndNot(bm)
		}
	}

	return groupByAscendingCost(candidates, costs), nil
}
