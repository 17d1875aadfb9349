package rank

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// AttributeRule prefers matches in higher-weighted searchable attributes,
// using word_fid_docids to find which fields a term matched in (spec
// §4.4.2 "Attribute"). Weight is the term's position in SearchableAttributes
// (earlier = lower cost = preferred). With no SearchableAttributes list,
// every indexed field is weighted by its position in alphabetical
// field-name order; with an explicit list, fields absent from it all share
// one weight, just past the last listed field.
type AttributeRule struct{}

func (AttributeRule) Name() string { return "attribute" }

func (AttributeRule) Buckets(ctx *Context, candidates *roaring.Bitmap) ([]*roaring.Bitmap, error) {
	if candidates.IsEmpty() {
		return nil, nil
	}
	weight := fieldWeights(ctx)
	costs := map[uint32]int{}
	it := candidates.Iterator()
	for it.HasNext() {
		costs[it.Next()] = 0
	}
	missPenalty := len(weight) + 1 // heavier than any known field weight

	for _, n := range ctx.Graph.TermNodes() {
		best := map[uint32]int{}
		for _, word := range termWords(n.Term) {
			prefix := append([]byte(word), 0)
			err := ctx.Env.WordFidDocids().ForEachPrefix(ctx.Tx, prefix, func(suffix []byte, bm *roaring.Bitmap) error {
				if len(suffix) != 2 {
					return nil
				}
				fid := uint16(suffix[0])<<8 | uint16(suffix[1])
				w, ok := weight[fid]
				if !ok {
					w = len(weight)
				}
				bm = roaring.And(bm, candidates)
				bit := bm.Iterator()
				for bit.HasNext() {
					d := bit.Next()
					if cur, ok := best[d]; !ok || w < cur {
						best[d] = w
					}
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
		it := candidates.Iterator()
		for it.HasNext() {
			d := it.Next()
			if w, ok := best[d]; ok {
				costs[d] += w
			} else {
				costs[d] += missPenalty
			}
		}
	}

	return groupByAscendingCost(candidates, costs), nil
}

func fieldWeights(ctx *Context) map[uint16]int {
	out := map[uint16]int{}
	names := ctx.Settings.SearchableAttributes
	if len(names) == 0 {
		names = ctx.Env.Fields().Names()
	}
	for i, n := range names {
		if fid, ok := ctx.Env.Fields().ID(n); ok {
			out[fid] = i
		}
	}
	return out
}
