package rank

import (
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
)

// Cascade is the resolved, ordered ranking-rule stack for one search (spec
// §4.4.2 "The engine runs rules as a stack").
type Cascade struct {
	Rules []Rule
}

// BuildCascade resolves an ordered rule-name list (settings.RankingRules,
// or a request's override) into Rule instances. It recognises the fixed
// rule names and the embedded-sort conventions ("field:asc"/"field:desc",
// "_geoPoint(lat,lng):asc"/":desc"); unrecognised names are skipped rather
// than erroring, so one bad entry degrades the cascade instead of failing
// the search outright.
func BuildCascade(names []string) Cascade {
	var rules []Rule
	for _, n := range names {
		if r, ok := ParseSortRule(n); ok {
			rules = append(rules, r)
			continue
		}
		if r, ok := ParseGeoRule(n); ok {
			rules = append(rules, r)
			continue
		}
		if r := ByName(n); r != nil {
			rules = append(rules, r)
			continue
		}
	}
	return Cascade{Rules: rules}
}

// Run applies the rule stack to the filtered universe, returning docids in
// final rank order. Buckets of size > 1 that survive every rule are
// tie-broken by ascending internal docid (spec §4.4.2 "Tie-breaks").
func (c Cascade) Run(ctx *Context, universe *roaring.Bitmap) ([]uint32, error) {
	return c.expand(ctx, universe, 0)
}

func (c Cascade) expand(ctx *Context, bucket *roaring.Bitmap, ruleIdx int) ([]uint32, error) {
	if bucket.IsEmpty() {
		return nil, nil
	}
	if bucket.GetCardinality() == 1 || ruleIdx >= len(c.Rules) {
		return ascending(bucket), nil
	}

	subBuckets, err := c.Rules[ruleIdx].Buckets(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if len(subBuckets) <= 1 {
		return c.expand(ctx, bucket, ruleIdx+1)
	}

	out := make([]uint32, 0, bucket.GetCardinality())
	for _, sb := range subBuckets {
		docids, err := c.expand(ctx, sb, ruleIdx+1)
		if err != nil {
			return nil, err
		}
		out = append(out, docids...)
	}
	return out, nil
}

func ascending(bm *roaring.Bitmap) []uint32 {
	out := make([]uint32, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, it.Next())
	}
	return out
}

// ApplyDistinct retains only the first occurrence of each distinct value,
// in rank order, when a DistinctAttribute is configured (spec §4.4.2
// "Distinct"). Documents with no recorded value for the attribute are
// never deduplicated against one another or against valued documents.
func ApplyDistinct(ctx *Context, ranked []uint32) ([]uint32, error) {
	attr := ctx.Settings.DistinctAttribute
	if attr == "" {
		return ranked, nil
	}
	fid, known := ctx.Env.Fields().ID(attr)
	if !known {
		return ranked, nil
	}

	seen := map[string]struct{}{}
	out := make([]uint32, 0, len(ranked))
	for _, d := range ranked {
		key, ok, err := distinctKey(ctx, fid, d)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, d)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}

func distinctKey(ctx *Context, fid uint16, docid uint32) (string, bool, error) {
	if s, ok, err := ctx.Env.GetFacetStringValue(ctx.Tx, fid, docid); err != nil {
		return "", false, err
	} else if ok {
		return "s:" + s, true, nil
	}
	if f, ok, err := ctx.Env.GetFacetF64Value(ctx.Tx, fid, docid); err != nil {
		return "", false, err
	} else if ok {
		return "f:" + strconv.FormatFloat(f, 'g', -1, 64), true, nil
	}
	return "", false, nil
}
