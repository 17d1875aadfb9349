// Package rank implements the ranking-rule cascade of spec §4.4.2: Words,
// Typo, Proximity, Attribute, Exactness, Sort, Geo, and the Vector hybrid
// rule, run as a stack of stateful bucket generators over the candidate
// docid set narrowed by the filter/universe.
package rank

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/query"
	"github.com/Aman-CERP/ftscore/internal/store"
)

// Context carries everything a ranking rule needs to turn one candidate
// bucket into ordered sub-buckets: the open read transaction, the store
// environment, the resolved settings, and the query graph built for this
// search.
type Context struct {
	Tx       *bbolt.Tx
	Env      *store.Environment
	Settings config.Settings
	Graph    *query.Graph

	// Vector query support, set only for hybrid/vector searches. VectorScores
	// is populated by the vector subsystem (C6) with each candidate docid's
	// similarity to QueryVector; VectorRule only consumes it.
	QueryVector   []float32
	SemanticRatio float64
	VectorScores  map[uint32]float64
}

// Rule is one stateful bucket generator (spec §4.4.2): given a parent
// candidate bucket, it yields ordered sub-buckets (best first) whose union
// equals the input exactly once each docid, i.e. a partition.
type Rule interface {
	Name() string
	Buckets(ctx *Context, candidates *roaring.Bitmap) ([]*roaring.Bitmap, error)
}

// ByName resolves one of the default rule names from spec §4.4.2 to its
// Rule implementation. Unknown names are ignored by the caller (cascade.go)
// rather than erroring, so a settings typo degrades gracefully to fewer
// rules instead of failing the whole search.
func ByName(name string) Rule {
	switch name {
	case "words":
		return WordsRule{}
	case "typo":
		return TypoRule{}
	case "proximity":
		return ProximityRule{}
	case "attribute":
		return AttributeRule{}
	case "exactness":
		return ExactnessRule{}
	case "geo":
		return GeoRule{}
	case "vector":
		return VectorRule{}
	default:
		return nil
	}
}

// groupByAscendingCost partitions candidates into ordered buckets by
// ascending integer cost, cheapest first, used by Typo/Proximity/Attribute
// which all reduce to "rank by a per-document scalar, ascending".
func groupByAscendingCost(candidates *roaring.Bitmap, cost map[uint32]int) []*roaring.Bitmap {
	if candidates.IsEmpty() {
		return nil
	}
	byCost := map[int]*roaring.Bitmap{}
	it := candidates.Iterator()
	for it.HasNext() {
		d := it.Next()
		c := cost[d]
		bm, ok := byCost[c]
		if !ok {
			bm = roaring.New()
			byCost[c] = bm
		}
		bm.Add(d)
	}
	costs := make([]int, 0, len(byCost))
	for c := range byCost {
		costs = append(costs, c)
	}
	sort.Ints(costs)
	out := make([]*roaring.Bitmap, 0, len(costs))
	for _, c := range costs {
		out = append(out, byCost[c])
	}
	return out
}

// groupByDescendingCount partitions candidates into ordered buckets by
// descending integer count, used by Words ("more matched terms is better").
func groupByDescendingCount(candidates *roaring.Bitmap, count map[uint32]int) []*roaring.Bitmap {
	buckets := groupByAscendingCost(candidates, count)
	for i, j := 0, len(buckets)-1; i < j; i, j = i+1, j-1 {
		buckets[i], buckets[j] = buckets[j], buckets[i]
	}
	return buckets
}

// wordBitmap unions the WordDocids postings for word, and also the
// WordPrefixDocids postings when usePrefix is set (spec §4.4.1
// "use_prefix_db" for the last, non-indexed query token).
func wordBitmap(ctx *Context, word string, usePrefix bool) (*roaring.Bitmap, error) {
	out := roaring.New()
	bm, err := ctx.Env.WordDocids().Get(ctx.Tx, []byte(word))
	if err != nil {
		return nil, err
	}
	if bm != nil {
		out.Or(bm)
	}
	if usePrefix {
		bm, err := ctx.Env.WordPrefixDocids().Get(ctx.Tx, []byte(word))
		if err != nil {
			return nil, err
		}
		if bm != nil {
			out.Or(bm)
		}
	}
	return out, nil
}

// TermBitmap is the exported form of termBitmap, used by the top-level
// search orchestrator (outside this package) to compute the initial
// candidate universe from the query graph's term nodes before the cascade
// runs.
func TermBitmap(ctx *Context, t *query.QueryTerm) (*roaring.Bitmap, error) {
	return termBitmap(ctx, t)
}

// termBitmap unions every variant's word bitmap for one query term,
// including its phrase-word intersection when the term is a phrase group.
func termBitmap(ctx *Context, t *query.QueryTerm) (*roaring.Bitmap, error) {
	if t.IsPhrase {
		out := ctx.Env.WordDocids()
		var acc *roaring.Bitmap
		for _, w := range t.PhraseWords {
			bm, err := out.Get(ctx.Tx, []byte(w))
			if err != nil {
				return nil, err
			}
			if bm == nil {
				return roaring.New(), nil
			}
			if acc == nil {
				acc = bm.Clone()
			} else {
				acc.And(bm)
			}
		}
		if acc == nil {
			return roaring.New(), nil
		}
		return acc, nil
	}

	result := roaring.New()
	for _, v := range t.Variants {
		bm, err := wordBitmap(ctx, v.Word, t.UsePrefixDB && v.TypoCost == 0)
		if err != nil {
			return nil, err
		}
		result.Or(bm)
	}
	return result, nil
}
