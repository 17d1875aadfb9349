package rank

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// VectorRule ranks candidates by descending ANN similarity when a vector
// query is present (spec §4.4.2 "Vector (hybrid)"). The query pipeline fills
// Context.VectorScores from vector.Manager.Search with each matched docid's
// DistributionShift-normalised similarity in (0,1]; this rule only consumes
// that map; it does not run nearest-neighbour search itself. SemanticRatio
// only switches the rule on: scores are not blended with the upstream
// keyword ranking. Each scored candidate gets its own bucket, and candidates
// without a score follow in one final bucket. A zero SemanticRatio, a
// missing query vector or an empty score map makes this rule a pass-through.
// "vector" is not in the default ranking rules; the rule runs only where a
// RankingRules list names it.
type VectorRule struct{}

func (VectorRule) Name() string { return "vector" }

func (VectorRule) Buckets(ctx *Context, candidates *roaring.Bitmap) ([]*roaring.Bitmap, error) {
	if candidates.IsEmpty() || len(ctx.QueryVector) == 0 || ctx.SemanticRatio <= 0 || len(ctx.VectorScores) == 0 {
		return []*roaring.Bitmap{candidates.Clone()}, nil
	}

	type scored struct {
		docid uint32
		score float64
	}
	var ranked []scored
	withScore := roaring.New()
	it := candidates.Iterator()
	for it.HasNext() {
		d := it.Next()
		if s, ok := ctx.VectorScores[d]; ok {
			ranked = append(ranked, scored{docid: d, score: s})
			withScore.Add(d)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	buckets := make([]*roaring.Bitmap, 0, len(ranked)+1)
	for _, s := range ranked {
		bm := roaring.New()
		bm.Add(s.docid)
		buckets = append(buckets, bm)
	}

	remainder := candidates.Clone()
	remainder.AndNot(withScore)
	if !remainder.IsEmpty() {
		buckets = append(buckets, remainder)
	}
	return buckets, nil
}
