package store

import (
	"encoding/binary"
	"math"

	"go.etcd.io/bbolt"
)

// facetValueKey builds the fid(BE u16)+docid(BE u32) composite key shared by
// `field_id_docid_facet_f64s` and `field_id_docid_facet_strings` (spec §3.2,
// §4.4.2 "Distinct ... looked up via field_id_docid_facet_strings/_f64s").
func facetValueKey(fid uint16, docid uint32) []byte {
	key := make([]byte, 0, 6)
	key = append(key, BEUint16(fid)...)
	key = append(key, BEUint32(docid)...)
	return key
}

// PutFacetF64Value stores the raw (non-key-encoded) facet value for one
// (fid, docid) pair, overwriting any previous value.
func (e *Environment) PutFacetF64Value(tx *bbolt.Tx, fid uint16, docid uint32, value float64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(value))
	return tx.Bucket([]byte(tableFieldIdDocidFacetF64s)).Put(facetValueKey(fid, docid), buf[:])
}

// DeleteFacetF64Value removes the stored value, if any.
func (e *Environment) DeleteFacetF64Value(tx *bbolt.Tx, fid uint16, docid uint32) error {
	return tx.Bucket([]byte(tableFieldIdDocidFacetF64s)).Delete(facetValueKey(fid, docid))
}

// GetFacetF64Value returns the stored value for (fid, docid), if present.
func (e *Environment) GetFacetF64Value(tx *bbolt.Tx, fid uint16, docid uint32) (float64, bool, error) {
	data := tx.Bucket([]byte(tableFieldIdDocidFacetF64s)).Get(facetValueKey(fid, docid))
	if data == nil {
		return 0, false, nil
	}
	return math.Float64frombits(binary.BigEndian.Uint64(data)), true, nil
}

// PutFacetStringValue stores the normalised string facet value for one
// (fid, docid) pair, overwriting any previous value.
func (e *Environment) PutFacetStringValue(tx *bbolt.Tx, fid uint16, docid uint32, value string) error {
	return tx.Bucket([]byte(tableFieldIdDocidFacetStrings)).Put(facetValueKey(fid, docid), []byte(value))
}

// DeleteFacetStringValue removes the stored value, if any.
func (e *Environment) DeleteFacetStringValue(tx *bbolt.Tx, fid uint16, docid uint32) error {
	return tx.Bucket([]byte(tableFieldIdDocidFacetStrings)).Delete(facetValueKey(fid, docid))
}

// GetFacetStringValue returns the stored value for (fid, docid), if present.
func (e *Environment) GetFacetStringValue(tx *bbolt.Tx, fid uint16, docid uint32) (string, bool, error) {
	data := tx.Bucket([]byte(tableFieldIdDocidFacetStrings)).Get(facetValueKey(fid, docid))
	if data == nil {
		return "", false, nil
	}
	return string(data), true, nil
}
