package rank

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Aman-CERP/ftscore/internal/query"
)

// maxProximity mirrors internal/indexer.MaxProximity (the prox byte cap on
// word_pair_proximity_docids); duplicated as a constant here rather than
// importing internal/indexer, which would pull the whole extraction
// pipeline into the query path for one constant.
const maxProximity = 8

// ProximityRule ranks documents by how close matched query terms sit to
// each other in the document, using word_pair_proximity_docids (spec
// §4.4.2 "Proximity"). Cost is the sum, over every adjacent pair of graph
// term nodes, of the smallest recorded proximity between any pair of their
// variants; pairs with no recorded proximity (terms present but far apart,
// or in different fields) cost one more than the maximum trackable
// distance. ProximityPrecision=byAttribute is not distinguished from
// byWord here: the per-attribute proximity variant in the original system
// keys word_pair_proximity_docids rows per searchable attribute, which
// this engine's single shared table does not split out, so byAttribute
// requests fall back to the byWord cost computed below.
type ProximityRule struct{}

func (ProximityRule) Name() string { return "proximity" }

func (ProximityRule) Buckets(ctx *Context, candidates *roaring.Bitmap) ([]*roaring.Bitmap, error) {
	if candidates.IsEmpty() {
		return nil, nil
	}
	costs := map[uint32]int{}
	it := candidates.Iterator()
	for it.HasNext() {
		costs[it.Next()] = 0
	}

	pairs := adjacentPairs(ctx.Graph)
	for _, pair := range pairs {
		remaining := candidates.Clone()
		for prox := byte(1); prox <= maxProximity && !remaining.IsEmpty(); prox++ {
			bm, err := pairBitmapAt(ctx, pair[0], pair[1], prox)
			if err != nil {
				return nil, err
			}
			bm.And(remaining)
			bit := bm.Iterator()
			for bit.HasNext() {
				d := bit.Next()
				costs[d] += int(prox)
			}
			remaining.AndNot(bm)
		}
		bit := remaining.Iterator()
		for bit.HasNext() {
			costs[bit.Next()] += maxProximity + 1
		}
	}

	return groupByAscendingCost(candidates, costs), nil
}

// adjacentPairs returns every pair of term nodes connected by a direct
// graph edge, in source-position order (spec §4.4.1 edges / §4.4.2
// Proximity "cost = sum of per-edge pair proximities").
func adjacentPairs(g *query.Graph) [][2]*query.QueryTerm {
	var out [][2]*query.QueryTerm
	for _, n := range g.Nodes {
		if n.Kind != query.NodeTerm {
			continue
		}
		for _, toID := range g.Edges[n.ID] {
			to := g.Nodes[toID]
			if to.Kind != query.NodeTerm {
				continue
			}
			out = append(out, [2]*query.QueryTerm{n.Term, to.Term})
		}
	}
	return out
}

func pairBitmapAt(ctx *Context, a, b *query.QueryTerm, prox byte) (*roaring.Bitmap, error) {
	out := roaring.New()
	for _, va := range termWords(a) {
		for _, vb := range termWords(b) {
			key := make([]byte, 0, len(va)+len(vb)+2)
			key = append(key, va...)
			key = append(key, 0)
			key = append(key, vb...)
			key = append(key, prox)
			bm, err := ctx.Env.WordPairProximityDocids().Get(ctx.Tx, key)
			if err != nil {
				return nil, err
			}
			if bm != nil {
				out.Or(bm)
			}
		}
	}
	return out, nil
}

func termWords(t *query.QueryTerm) []string {
	if t.IsPhrase {
		return t.PhraseWords
	}
	out := make([]string, 0, len(t.Variants))
	for _, v := range t.Variants {
		out = append(out, v.Word)
	}
	return out
}
