package filter

import (
	"bytes"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/geo"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/codec"
	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/store"
)

// InvalidFilterError is returned when a field name doesn't resolve to a
// filterable attribute (spec §4.4.3 "Field names must resolve to filterable
// attributes; otherwise the filter fails with InvalidFilter{reason, hint}").
type InvalidFilterError struct {
	Reason    string
	Available []string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter: %s", e.Reason)
}

// Evaluator evaluates a parsed filter expression against one index
// environment within an open transaction.
type Evaluator struct {
	Tx       *bbolt.Tx
	Env      *store.Environment
	Settings config.Settings
	// Universe is every live docid, needed to compute NOT's complement and
	// `field NOT EXISTS`.
	Universe *roaring.Bitmap
}

// Evaluate parses and evaluates a filter string in one call.
func Evaluate(expr string, ev *Evaluator) (*roaring.Bitmap, error) {
	e, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return ev.Eval(e)
}

// Eval evaluates an already-parsed expression, returning the matching
// docid set.
func (ev *Evaluator) Eval(e Expr) (*roaring.Bitmap, error) {
	switch n := e.(type) {
	case *orExpr:
		l, err := ev.Eval(n.left)
		if err != nil {
			return nil, err
		}
		r, err := ev.Eval(n.right)
		if err != nil {
			return nil, err
		}
		return roaring.Or(l, r), nil
	case *andExpr:
		l, err := ev.Eval(n.left)
		if err != nil {
			return nil, err
		}
		r, err := ev.Eval(n.right)
		if err != nil {
			return nil, err
		}
		return roaring.And(l, r), nil
	case *notExpr:
		inner, err := ev.Eval(n.inner)
		if err != nil {
			return nil, err
		}
		out := ev.Universe.Clone()
		out.AndNot(inner)
		return out, nil
	case *cmpExpr:
		return ev.evalCmp(n)
	case *inExpr:
		return ev.evalIn(n)
	case *existsExpr:
		return ev.evalExists(n)
	case *isNullExpr:
		return ev.evalFacetBitmap(n.field, ev.Env.FacetIdIsNullDocids())
	case *isEmptyExpr:
		return ev.evalFacetBitmap(n.field, ev.Env.FacetIdIsEmptyDocids())
	case *rangeExpr:
		return ev.evalRange(n)
	case *containsExpr:
		return ev.evalContains(n)
	case *geoRadiusExpr:
		return ev.evalGeoRadius(n)
	case *geoBBoxExpr:
		return ev.evalGeoBBox(n)
	}
	return nil, fmt.Errorf("unhandled filter node %T", e)
}

func (ev *Evaluator) isFilterable(name string) bool {
	for _, f := range ev.Settings.FilterableAttributes {
		if store.IsNestedPath(f, name) {
			return true
		}
	}
	return false
}

// resolveField checks field is filterable and looks up its fid. known is
// false when the field has never been indexed (a valid, always-empty
// result, not an error).
func (ev *Evaluator) resolveField(name string) (fid uint16, known bool, err error) {
	if !ev.isFilterable(name) {
		return 0, false, &InvalidFilterError{
			Reason:    fmt.Sprintf("attribute %q is not filterable", name),
			Available: ev.Settings.FilterableAttributes,
		}
	}
	fid, known = ev.Env.Fields().ID(name)
	return fid, known, nil
}

func orEmpty(bm *roaring.Bitmap, err error) (*roaring.Bitmap, error) {
	if err != nil {
		return nil, err
	}
	if bm == nil {
		return roaring.New(), nil
	}
	return bm, nil
}

var (
	minF64Key = []byte{0, 0, 0, 0, 0, 0, 0, 0}
	maxF64Key = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

func decKey(k [8]byte) []byte {
	b := append([]byte{}, k[:]...)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] > 0 {
			b[i]--
			break
		}
		b[i] = 0xff
	}
	return b
}

func incKey(k [8]byte) []byte {
	b := append([]byte{}, k[:]...)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			break
		}
		b[i] = 0
	}
	return b
}

func (ev *Evaluator) evalCmp(n *cmpExpr) (*roaring.Bitmap, error) {
	fid, known, err := ev.resolveField(n.field)
	if err != nil {
		return nil, err
	}
	if !known {
		return roaring.New(), nil
	}

	if n.op == "!=" {
		eq, err := ev.evalCmp(&cmpExpr{field: n.field, op: "=", value: n.value})
		if err != nil {
			return nil, err
		}
		out := ev.Universe.Clone()
		out.AndNot(eq)
		return out, nil
	}

	levelPrefix := append(store.BEUint16(fid), 0)

	if n.value.IsNumber {
		table := ev.Env.FacetIdF64Docids()
		switch n.op {
		case "=":
			key := codec.EncodeF64FacetKey(n.value.Num)
			full := append(append([]byte{}, levelPrefix...), key[:]...)
			return orEmpty(table.Get(ev.Tx, full))
		case "<":
			key := codec.EncodeF64FacetKey(n.value.Num)
			bm, err := table.RangeUnion(ev.Tx, levelPrefix, minF64Key, decKey(key))
			return bm, err
		case "<=":
			key := codec.EncodeF64FacetKey(n.value.Num)
			return table.RangeUnion(ev.Tx, levelPrefix, minF64Key, key[:])
		case ">":
			key := codec.EncodeF64FacetKey(n.value.Num)
			return table.RangeUnion(ev.Tx, levelPrefix, incKey(key), maxF64Key)
		case ">=":
			key := codec.EncodeF64FacetKey(n.value.Num)
			return table.RangeUnion(ev.Tx, levelPrefix, key[:], maxF64Key)
		}
		return nil, fmt.Errorf("unsupported numeric operator %q", n.op)
	}

	if n.op != "=" {
		return nil, fmt.Errorf("operator %q is not supported on string attribute %q", n.op, n.field)
	}
	table := ev.Env.FacetIdStringDocids()
	norm := codec.NormalizeFacetString(n.value.Str)
	full := append(append([]byte{}, levelPrefix...), []byte(norm)...)
	return orEmpty(table.Get(ev.Tx, full))
}

func (ev *Evaluator) evalIn(n *inExpr) (*roaring.Bitmap, error) {
	out := roaring.New()
	for _, v := range n.values {
		bm, err := ev.evalCmp(&cmpExpr{field: n.field, op: "=", value: v})
		if err != nil {
			return nil, err
		}
		out.Or(bm)
	}
	return out, nil
}

func (ev *Evaluator) evalExists(n *existsExpr) (*roaring.Bitmap, error) {
	fid, known, err := ev.resolveField(n.field)
	if err != nil {
		return nil, err
	}
	bm := roaring.New()
	if known {
		got, err := ev.Env.FacetIdExistsDocids().Get(ev.Tx, store.BEUint16(fid))
		if err != nil {
			return nil, err
		}
		if got != nil {
			bm = got
		}
	}
	if n.negate {
		out := ev.Universe.Clone()
		out.AndNot(bm)
		return out, nil
	}
	return bm, nil
}

func (ev *Evaluator) evalFacetBitmap(field string, table store.PostingsTable) (*roaring.Bitmap, error) {
	fid, known, err := ev.resolveField(field)
	if err != nil {
		return nil, err
	}
	if !known {
		return roaring.New(), nil
	}
	return orEmpty(table.Get(ev.Tx, store.BEUint16(fid)))
}

func (ev *Evaluator) evalRange(n *rangeExpr) (*roaring.Bitmap, error) {
	fid, known, err := ev.resolveField(n.field)
	if err != nil {
		return nil, err
	}
	if !known {
		return roaring.New(), nil
	}
	if !n.low.IsNumber || !n.high.IsNumber {
		return nil, fmt.Errorf("TO range requires numeric bounds on attribute %q", n.field)
	}
	lo, hi := n.low.Num, n.high.Num
	if lo > hi {
		lo, hi = hi, lo
	}
	levelPrefix := append(store.BEUint16(fid), 0)
	loKey := codec.EncodeF64FacetKey(lo)
	hiKey := codec.EncodeF64FacetKey(hi)
	return ev.Env.FacetIdF64Docids().RangeUnion(ev.Tx, levelPrefix, loKey[:], hiKey[:])
}

func (ev *Evaluator) evalContains(n *containsExpr) (*roaring.Bitmap, error) {
	fid, known, err := ev.resolveField(n.field)
	if err != nil {
		return nil, err
	}
	if !known {
		return roaring.New(), nil
	}
	levelPrefix := append(store.BEUint16(fid), 0)
	needle := []byte(codec.NormalizeFacetString(n.value.Str))
	return ev.Env.FacetIdStringDocids().PrefixMatch(ev.Tx, levelPrefix, func(suffix []byte) bool {
		return bytes.Contains(suffix, needle)
	})
}

func (ev *Evaluator) evalGeoRadius(n *geoRadiusExpr) (*roaring.Bitmap, error) {
	points, err := ev.Env.AllGeoPoints(ev.Tx)
	if err != nil {
		return nil, err
	}
	out := roaring.New()
	for docid, p := range points {
		distanceKm := geo.Haversin(n.lng, n.lat, p.Lng, p.Lat)
		if distanceKm*1000 <= n.meters {
			out.Add(docid)
		}
	}
	return out, nil
}

func (ev *Evaluator) evalGeoBBox(n *geoBBoxExpr) (*roaring.Bitmap, error) {
	points, err := ev.Env.AllGeoPoints(ev.Tx)
	if err != nil {
		return nil, err
	}
	minLat, maxLat := math.Min(n.swLat, n.neLat), math.Max(n.swLat, n.neLat)
	minLng, maxLng := math.Min(n.swLng, n.neLng), math.Max(n.swLng, n.neLng)
	out := roaring.New()
	for docid, p := range points {
		if p.Lat >= minLat && p.Lat <= maxLat && p.Lng >= minLng && p.Lng <= maxLng {
			out.Add(docid)
		}
	}
	return out, nil
}
