package rank

import (
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// SortRule iterates one sortable field's facet values in already-sorted key
// order (ascending for numeric f64 keys thanks to the sign-preserving
// encoding, lexicographic for normalised strings), clamping to the current
// candidate bucket at every step (spec §4.4.2 "Sort"). Numeric values come
// before string values in ascending order, and the whole order is reversed
// for descending. A value is redacted from the eventual result (not from
// ranking) when the field is absent from DisplayedAttributes; that redaction
// happens when hits are built in internal/query/pipeline/search.go
// (attrRetrievable), not here.
type SortRule struct {
	Field       string
	Descending  bool
	stringField bool
}

func (r SortRule) Name() string {
	order := "asc"
	if r.Descending {
		order = "desc"
	}
	return r.Field + ":" + order
}

// ParseSortRule recognises a ranking-rule entry of the form "field:asc" or
// "field:desc" (Meilisearch's convention for embedding sort directly in the
// ranking-rule list), returning ok=false for anything else.
func ParseSortRule(name string) (SortRule, bool) {
	i := strings.LastIndex(name, ":")
	if i <= 0 {
		return SortRule{}, false
	}
	field, order := name[:i], name[i+1:]
	switch order {
	case "asc":
		return SortRule{Field: field}, true
	case "desc":
		return SortRule{Field: field, Descending: true}, true
	}
	return SortRule{}, false
}

func (r SortRule) Buckets(ctx *Context, candidates *roaring.Bitmap) ([]*roaring.Bitmap, error) {
	if candidates.IsEmpty() {
		return nil, nil
	}
	fid, known := ctx.Env.Fields().ID(r.Field)
	if !known {
		return []*roaring.Bitmap{candidates.Clone()}, nil
	}

	var buckets []*roaring.Bitmap
	levelPrefix := append([]byte{byte(fid >> 8), byte(fid)}, 0)

	seen := roaring.New()
	collect := func(_ []byte, bm *roaring.Bitmap) error {
		bm = roaring.And(bm, candidates)
		if bm.IsEmpty() {
			return nil
		}
		buckets = append(buckets, bm)
		seen.Or(bm)
		return nil
	}
	if err := ctx.Env.FacetIdF64Docids().ForEachPrefix(ctx.Tx, levelPrefix, collect); err != nil {
		return nil, err
	}
	if err := ctx.Env.FacetIdStringDocids().ForEachPrefix(ctx.Tx, levelPrefix, collect); err != nil {
		return nil, err
	}

	if r.Descending {
		for i, j := 0, len(buckets)-1; i < j; i, j = i+1, j-1 {
			buckets[i], buckets[j] = buckets[j], buckets[i]
		}
	}

	remainder := candidates.Clone()
	remainder.AndNot(seen)
	if !remainder.IsEmpty() {
		// Documents without a value for this field sort after every
		// present value regardless of direction.
		buckets = append(buckets, remainder)
	}
	return buckets, nil
}
