package rank

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// WordsRule greedily drops low-importance query terms starting from the
// most-optional side until the conjunction matches something, yielding
// buckets ordered by number of matched query terms, descending (spec
// §4.4.2 "Words").
type WordsRule struct{}

func (WordsRule) Name() string { return "words" }

func (WordsRule) Buckets(ctx *Context, candidates *roaring.Bitmap) ([]*roaring.Bitmap, error) {
	if candidates.IsEmpty() {
		return nil, nil
	}
	termNodes := ctx.Graph.TermNodes()
	if len(termNodes) == 0 {
		return []*roaring.Bitmap{candidates.Clone()}, nil
	}

	bitmaps := make([]*roaring.Bitmap, len(termNodes))
	for i, n := range termNodes {
		bm, err := termBitmap(ctx, n.Term)
		if err != nil {
			return nil, err
		}
		bitmaps[i] = bm
	}

	order := removalOrder(ctx.Settings.TermsMatchingStrategy, len(termNodes), bitmaps)

	kept := make([]bool, len(termNodes))
	for i := range kept {
		kept[i] = true
	}
	remainingToRemove := len(termNodes)

	assigned := roaring.New()
	var out []*roaring.Bitmap

	for {
		acc := candidates.Clone()
		for i, k := range kept {
			if k {
				acc.And(bitmaps[i])
			}
		}
		acc.AndNot(assigned)
		if !acc.IsEmpty() {
			out = append(out, acc)
			assigned.Or(acc)
		}

		if assigned.GetCardinality() == candidates.GetCardinality() {
			break
		}
		if ctx.Settings.TermsMatchingStrategy == "all" || remainingToRemove == 0 {
			break
		}

		removedAny := false
		for _, idx := range order {
			if kept[idx] {
				kept[idx] = false
				remainingToRemove--
				removedAny = true
				break
			}
		}
		if !removedAny {
			break
		}
	}

	remainder := candidates.Clone()
	remainder.AndNot(assigned)
	if !remainder.IsEmpty() {
		out = append(out, remainder)
	}
	return out, nil
}

// removalOrder decides which term index to drop first, second, ... under
// the configured strategy. "last" drops from the end of the query inward;
// "frequency" drops the term whose posting list is largest (least
// distinguishing) first; "all" never removes anything (empty order).
func removalOrder(strategy string, n int, bitmaps []*roaring.Bitmap) []int {
	if strategy == "all" {
		return nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if strategy == "frequency" {
		sort.Slice(idx, func(i, j int) bool {
			return bitmaps[idx[i]].GetCardinality() > bitmaps[idx[j]].GetCardinality()
		})
		return idx
	}
	// default "last": reverse order, rightmost term first.
	for i, j := 0, len(idx)-1; i < j; i, j = i+1, j-1 {
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}
