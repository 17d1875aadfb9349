package indexer

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Aman-CERP/ftscore/internal/codec"
	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/store"
)

// ChangeKind is the shape of one document mutation (spec §4.3.1).
type ChangeKind int

const (
	Insertion ChangeKind = iota
	Update
	Deletion
)

// DocumentChange is one resolved document mutation ready for extraction
// (spec §4.3.2 step 3 "Version materialisation").
type DocumentChange struct {
	Kind       ChangeKind
	Docid      uint32
	ExternalID string
	// Current is the document as stored before this change (nil for
	// Insertion).
	Current map[string]json.RawMessage
	// Merged is the document after applying the change (nil for Deletion).
	Merged map[string]json.RawMessage
}

// MaxFieldWordCount is the cap on field_id_word_count_docids; documents
// with more indexable tokens in a field are bucketed at this value (spec
// SUPPLEMENTED FEATURES: "per-fid count bucket is capped at 255").
const MaxFieldWordCount = 255

// MaxProximity bounds word_pair_proximity_docids' prox byte (spec §3.2
// "prox(u8) in [1,MAX_PROX]").
const MaxProximity = 8

// Deltas aggregates every posting-family contribution produced by
// extracting one DocumentChange, keyed by the exact on-disk key bytes for
// that table (spec §4.3.2 step 4).
type Deltas struct {
	WordDocids              map[string]codec.Delta
	ExactWordDocids         map[string]codec.Delta
	WordPairProximityDocids map[string]codec.Delta
	WordPositionDocids      map[string]codec.Delta
	WordFidDocids           map[string]codec.Delta
	FieldIdWordCountDocids  map[string]codec.Delta
	FacetF64Docids          map[string]codec.Delta
	FacetStringDocids       map[string]codec.Delta
	FacetExistsDocids       map[string]codec.Delta
	FacetIsNullDocids       map[string]codec.Delta
	FacetIsEmptyDocids      map[string]codec.Delta

	// FacetF64Values and FacetStringValues hold the per-(fid,docid) scalar
	// facet value used by the Distinct ranking rule (spec §4.4.2 "looked up
	// via field_id_docid_facet_strings / _f64s"), keyed by the 6-byte
	// fid+docid composite. A nil entry means "delete this key" (set by the
	// Del pass and overwritten by the Add pass for an update).
	FacetF64Values    map[string]*float64
	FacetStringValues map[string]*string

	// GeoPoints holds the reserved `_geo` coordinate per changed docid,
	// keyed by the 4-byte BE docid (spec §4.4.2 Geo, §4.4.3 geo filters). A
	// nil entry deletes the stored point.
	GeoPoints map[string]*store.GeoPoint

	// DocumentBlob is the new OBKV blob for this docid, or nil for a
	// deletion (the caller removes the `documents` key instead).
	DocumentBlob []byte
}

func newDeltas() *Deltas {
	return &Deltas{
		WordDocids:              map[string]codec.Delta{},
		ExactWordDocids:         map[string]codec.Delta{},
		WordPairProximityDocids: map[string]codec.Delta{},
		WordPositionDocids:      map[string]codec.Delta{},
		WordFidDocids:           map[string]codec.Delta{},
		FieldIdWordCountDocids:  map[string]codec.Delta{},
		FacetF64Docids:          map[string]codec.Delta{},
		FacetStringDocids:       map[string]codec.Delta{},
		FacetExistsDocids:       map[string]codec.Delta{},
		FacetIsNullDocids:       map[string]codec.Delta{},
		FacetIsEmptyDocids:      map[string]codec.Delta{},
		FacetF64Values:          map[string]*float64{},
		FacetStringValues:       map[string]*string{},
		GeoPoints:               map[string]*store.GeoPoint{},
	}
}

func addToDelta(m map[string]codec.Delta, key []byte, docid uint32, isAdd bool) {
	k := string(key)
	d := m[k]
	if isAdd {
		if d.Add == nil {
			d.Add = roaring.New()
		}
		d.Add.Add(docid)
	} else {
		if d.Del == nil {
			d.Del = roaring.New()
		}
		d.Del.Add(docid)
	}
	m[k] = d
}

// Extractor turns a DocumentChange into per-table Del/Add contributions
// (spec §4.3.2 step 4). One Extractor instance is safe to reuse across
// documents processed by the same worker but is not itself concurrency
// safe (the pipeline allocates one per worker goroutine).
type Extractor struct {
	fields   *store.FieldsMap
	settings config.Settings
	tok      *Tokenizer
}

// NewExtractor builds an extractor bound to the index's current fields map
// and settings snapshot.
func NewExtractor(fields *store.FieldsMap, settings config.Settings) *Extractor {
	return &Extractor{
		fields:   fields,
		settings: settings,
		tok: NewTokenizer(
			settings.SeparatorTokens,
			settings.NonSeparatorTokens,
			settings.Dictionary,
			settings.StopWords,
		),
	}
}

// Extract computes the full Deltas for one DocumentChange by diffing the
// postings produced from Current against those produced from Merged.
func (x *Extractor) Extract(ch DocumentChange) (*Deltas, error) {
	d := newDeltas()

	var prevFields, newFields map[string][]byte
	var err error
	if ch.Current != nil {
		prevFields, err = flattenRaw(ch.Current)
		if err != nil {
			return nil, fmt.Errorf("flatten current document: %w", err)
		}
	}
	if ch.Merged != nil {
		newFields, err = flattenRaw(ch.Merged)
		if err != nil {
			return nil, fmt.Errorf("flatten merged document: %w", err)
		}
	}

	if prevFields != nil {
		x.extractInto(d, ch.Docid, prevFields, false)
	}
	if newFields != nil {
		x.extractInto(d, ch.Docid, newFields, true)
		d.DocumentBlob, err = x.buildOBKV(newFields)
		if err != nil {
			return nil, err
		}
	}

	return d, nil
}

func flattenRaw(doc map[string]json.RawMessage) (map[string][]byte, error) {
	out := make(map[string][]byte, len(doc))
	for k, v := range doc {
		out[k] = []byte(v)
	}
	return out, nil
}

func (x *Extractor) buildOBKV(fields map[string][]byte) ([]byte, error) {
	records := make([]codec.Field, 0, len(fields))
	for name, raw := range fields {
		fid := x.fields.GetOrCreate(name)
		records = append(records, codec.Field{Fid: fid, Data: raw})
	}
	return codec.EncodeOBKV(records), nil
}

// extractInto emits postings contributions for one document's fields, as
// Add contributions if isAdd, Del contributions otherwise (the diff
// between isAdd=false over Current and isAdd=true over Merged yields the
// spec's Del/Add pair per posting family).
func (x *Extractor) extractInto(d *Deltas, docid uint32, fields map[string][]byte, isAdd bool) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !x.isSearchable(name) {
			x.extractFacet(d, docid, name, fields[name], isAdd)
			continue
		}

		fid := x.fields.GetOrCreate(name)
		var text string
		if err := json.Unmarshal(fields[name], &text); err != nil {
			// Non-string searchable fields contribute no terms, but may
			// still be facetable (numbers, booleans, null, arrays).
			x.extractFacet(d, docid, name, fields[name], isAdd)
			continue
		}

		tokens := x.tok.Tokenize(text)
		exact := x.isExactField(name)

		wordCount := len(tokens)
		if wordCount > MaxFieldWordCount {
			wordCount = MaxFieldWordCount
		}
		countKey := append(append([]byte{}, store.BEUint16(fid)...), byte(wordCount))
		addToDelta(d.FieldIdWordCountDocids, countKey, docid, isAdd)

		for i, tok := range tokens {
			addToDelta(d.WordDocids, []byte(tok.Term), docid, isAdd)
			if exact {
				addToDelta(d.ExactWordDocids, []byte(tok.Term), docid, isAdd)
			}

			fidKey := append(append([]byte(tok.Term+"\x00"), store.BEUint16(fid)...))
			addToDelta(d.WordFidDocids, fidKey, docid, isAdd)

			posKey := append([]byte(tok.Term+"\x00"), store.BEUint32(uint32(tok.Position))...)
			addToDelta(d.WordPositionDocids, posKey, docid, isAdd)

			if i > 0 {
				prev := tokens[i-1]
				prox := int(tok.Position) - int(prev.Position)
				if prox > 0 && prox <= MaxProximity {
					pairKey := pairProximityKey(prev.Term, tok.Term, byte(prox))
					addToDelta(d.WordPairProximityDocids, pairKey, docid, isAdd)
				}
			}
		}

		x.extractFacet(d, docid, name, fields[name], isAdd)
	}
}

func pairProximityKey(t1, t2 string, prox byte) []byte {
	key := make([]byte, 0, len(t1)+1+len(t2)+1)
	key = append(key, t1...)
	key = append(key, 0)
	key = append(key, t2...)
	key = append(key, prox)
	return key
}

func (x *Extractor) isSearchable(field string) bool {
	if len(x.settings.SearchableAttributes) == 0 {
		return true
	}
	for _, s := range x.settings.SearchableAttributes {
		if store.IsNestedPath(s, field) {
			return true
		}
	}
	return false
}

func (x *Extractor) isExactField(field string) bool {
	for _, a := range x.settings.TypoTolerance.DisableOnAttributes {
		if store.IsNestedPath(a, field) {
			return true
		}
	}
	return false
}

func (x *Extractor) isFilterableOrSortable(field string) bool {
	for _, f := range x.settings.FilterableAttributes {
		if store.IsNestedPath(f, field) {
			return true
		}
	}
	for _, s := range x.settings.SortableAttributes {
		if store.IsNestedPath(s, field) {
			return true
		}
	}
	return false
}

// extractFacet pushes facet-value, exists/is_null/is_empty contributions
// for filterable/sortable fields (spec §4.3.2 step 4, facet_id_* tables).
func (x *Extractor) extractFacet(d *Deltas, docid uint32, name string, raw []byte, isAdd bool) {
	if !x.isFilterableOrSortable(name) {
		return
	}
	fid := x.fields.GetOrCreate(name)

	existsKey := store.BEUint16(fid)
	addToDelta(d.FacetExistsDocids, existsKey, docid, isAdd)

	valueKey := string(append(append([]byte{}, store.BEUint16(fid)...), store.BEUint32(docid)...))
	if !isAdd {
		d.FacetF64Values[valueKey] = nil
		d.FacetStringValues[valueKey] = nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}

	switch t := v.(type) {
	case nil:
		addToDelta(d.FacetIsNullDocids, existsKey, docid, isAdd)
	case bool:
		key := append(append([]byte{}, store.BEUint16(fid)...), levelByte(0))
		sval := "false"
		if t {
			sval = "true"
		}
		key = append(key, []byte(sval)...)
		addToDelta(d.FacetStringDocids, key, docid, isAdd)
		if isAdd {
			d.FacetStringValues[valueKey] = &sval
		}
	case float64:
		key := append(append([]byte{}, store.BEUint16(fid)...), levelByte(0))
		fkey := codec.EncodeF64FacetKey(t)
		key = append(key, fkey[:]...)
		addToDelta(d.FacetF64Docids, key, docid, isAdd)
		if isAdd {
			fval := t
			d.FacetF64Values[valueKey] = &fval
		}
	case string:
		if t == "" {
			addToDelta(d.FacetIsEmptyDocids, existsKey, docid, isAdd)
		}
		norm := codec.NormalizeFacetString(t)
		key := append(append([]byte{}, store.BEUint16(fid)...), levelByte(0))
		key = append(key, []byte(norm)...)
		addToDelta(d.FacetStringDocids, key, docid, isAdd)
		if isAdd {
			sval := norm
			d.FacetStringValues[valueKey] = &sval
		}
	case []any:
		if len(t) == 0 {
			addToDelta(d.FacetIsEmptyDocids, existsKey, docid, isAdd)
		}
	case map[string]any:
		if len(t) == 0 {
			addToDelta(d.FacetIsEmptyDocids, existsKey, docid, isAdd)
		}
		if name == "_geo" {
			docidKey := string(store.BEUint32(docid))
			if !isAdd {
				d.GeoPoints[docidKey] = nil
			} else if lat, ok := t["lat"].(float64); ok {
				if lng, ok2 := t["lng"].(float64); ok2 {
					d.GeoPoints[docidKey] = &store.GeoPoint{Lat: lat, Lng: lng}
				}
			}
		}
	}
}

func levelByte(level uint8) byte { return level }
