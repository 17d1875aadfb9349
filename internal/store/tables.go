package store

import (
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/codec"
)

// Table names, one bbolt bucket per row of spec §3.2's physical table list.
const (
	tableMain                     = "main"
	tableDocidWordPositions       = "docid_word_positions"
	tableDocuments                = "documents"
	tableExternalDocumentsIds     = "external_documents_ids"
	tableWordDocids               = "word_docids"
	tableExactWordDocids          = "exact_word_docids"
	tableWordPrefixDocids         = "word_prefix_docids"
	tableWordPairProximityDocids  = "word_pair_proximity_docids"
	tableWordPositionDocids       = "word_position_docids"
	tableWordFidDocids            = "word_fid_docids"
	tableFieldIdWordCountDocids   = "field_id_word_count_docids"
	tableFacetIdF64Docids         = "facet_id_f64_docids"
	tableFacetIdStringDocids      = "facet_id_string_docids"
	tableFacetIdExistsDocids      = "facet_id_exists_docids"
	tableFacetIdIsNullDocids      = "facet_id_is_null_docids"
	tableFacetIdIsEmptyDocids     = "facet_id_is_empty_docids"
	tableFieldIdDocidFacetF64s    = "field_id_docid_facet_f64s"
	tableFieldIdDocidFacetStrings = "field_id_docid_facet_strings"
	tableScriptLanguageDocids     = "script_language_docids"
	tableEmbeddersPrefix          = "embedders/"
	tableGeoPoints                = "geo_points"
)

// mainKey* are the fixed keys stored in the main bucket.
const (
	mainKeyVersion         = "version"
	mainKeyPrimaryKey      = "primary_key"
	mainKeyFieldsMap       = "fields_ids_map"
	mainKeySettings        = "settings"
	mainKeyUpdatedAt       = "updated_at"
	mainKeyDocumentsCount  = "documents_count"
	mainKeyFreeDocids      = "free_docids"
	mainKeyNextDocid       = "next_docid"
	mainKeyWordsFST        = "words_fst"
	mainKeyWordPrefixesFST = "word_prefixes_fst"
	mainKeyDictionaryID    = "document_dictionary_id"
	mainKeyDictionary      = "document_dictionary"
)

// tableNames lists every bucket ensureTables must create on open.
var tableNames = []string{
	tableMain,
	tableDocidWordPositions,
	tableDocuments,
	tableExternalDocumentsIds,
	tableWordDocids,
	tableExactWordDocids,
	tableWordPrefixDocids,
	tableWordPairProximityDocids,
	tableWordPositionDocids,
	tableWordFidDocids,
	tableFieldIdWordCountDocids,
	tableFacetIdF64Docids,
	tableFacetIdStringDocids,
	tableFacetIdExistsDocids,
	tableFacetIdIsNullDocids,
	tableFacetIdIsEmptyDocids,
	tableFieldIdDocidFacetF64s,
	tableFieldIdDocidFacetStrings,
	tableScriptLanguageDocids,
	tableGeoPoints,
}

// BEUint32 encodes a docid as a big-endian u32 key, matching the `documents`
// table's `docid (BE u32)` key format.
func BEUint32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

// BEUint16 encodes a fid as a big-endian u16 key fragment.
func BEUint16(v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return b[:]
}

// PostingsTable is a typed getter/putter over one of the roaring-bitmap
// posting tables listed in spec §3.2 (`RB` columns). Every higher-level
// read of a posting list goes through GetPostings/PutPostings so the
// roaring-with-threshold encoding (C1) is applied uniformly.
type PostingsTable struct {
	env   *Environment
	table string
}

func (e *Environment) postings(table string) PostingsTable {
	return PostingsTable{env: e, table: table}
}

// WordDocids, ExactWordDocids, ... expose each posting table by name.
func (e *Environment) WordDocids() PostingsTable              { return e.postings(tableWordDocids) }
func (e *Environment) ExactWordDocids() PostingsTable          { return e.postings(tableExactWordDocids) }
func (e *Environment) WordPrefixDocids() PostingsTable         { return e.postings(tableWordPrefixDocids) }
func (e *Environment) WordPairProximityDocids() PostingsTable  { return e.postings(tableWordPairProximityDocids) }
func (e *Environment) WordPositionDocids() PostingsTable       { return e.postings(tableWordPositionDocids) }
func (e *Environment) WordFidDocids() PostingsTable            { return e.postings(tableWordFidDocids) }
func (e *Environment) FieldIdWordCountDocids() PostingsTable   { return e.postings(tableFieldIdWordCountDocids) }
func (e *Environment) FacetIdF64Docids() PostingsTable         { return e.postings(tableFacetIdF64Docids) }
func (e *Environment) FacetIdStringDocids() PostingsTable      { return e.postings(tableFacetIdStringDocids) }
func (e *Environment) FacetIdExistsDocids() PostingsTable      { return e.postings(tableFacetIdExistsDocids) }
func (e *Environment) FacetIdIsNullDocids() PostingsTable      { return e.postings(tableFacetIdIsNullDocids) }
func (e *Environment) FacetIdIsEmptyDocids() PostingsTable     { return e.postings(tableFacetIdIsEmptyDocids) }
func (e *Environment) ScriptLanguageDocids() PostingsTable     { return e.postings(tableScriptLanguageDocids) }
func (e *Environment) DocidWordPositions() PostingsTable       { return e.postings(tableDocidWordPositions) }

// Get returns the decoded bitmap for key, or nil if absent.
func (t PostingsTable) Get(tx *bbolt.Tx, key []byte) (*roaring.Bitmap, error) {
	data := tx.Bucket([]byte(t.table)).Get(key)
	if data == nil {
		return nil, nil
	}
	bm, err := codec.DecodePostings(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s[%x]: %w", t.table, key, err)
	}
	return bm, nil
}

// ContainsSerialized checks membership without decoding a full bitmap when
// the stored form is small (C1's intersect-with-serialized fast path).
func (t PostingsTable) ContainsSerialized(tx *bbolt.Tx, key []byte, docid uint32) (bool, error) {
	data := tx.Bucket([]byte(t.table)).Get(key)
	if data == nil {
		return false, nil
	}
	return codec.IntersectWithSerialized(data, docid)
}

// ApplyDelta merges a Del/Add delta into the value at key and writes back
// the result, deleting the key if the merged set is empty (spec §4.1, §4.3.2
// step 5).
func (t PostingsTable) ApplyDelta(tx *bbolt.Tx, key []byte, delta codec.Delta) error {
	b := tx.Bucket([]byte(t.table))
	previous := b.Get(key)

	out, outcome, err := codec.MergeSerialized(previous, delta)
	if err != nil {
		return fmt.Errorf("merge %s[%x]: %w", t.table, key, err)
	}

	switch outcome {
	case codec.Delete:
		return b.Delete(key)
	case codec.Write:
		return b.Put(key, out)
	default: // Ignore
		return nil
	}
}

// RangeUnion unions the bitmaps of every key in [lowKey, highKey] (both
// inclusive) that starts with prefix, used by the filter grammar's
// comparison and TO-range operators over the sign-preserving f64 facet key
// encoding (spec §4.1, §4.4.3).
func (t PostingsTable) RangeUnion(tx *bbolt.Tx, prefix, lowKey, highKey []byte) (*roaring.Bitmap, error) {
	out := roaring.New()
	c := tx.Bucket([]byte(t.table)).Cursor()
	start := append(append([]byte{}, prefix...), lowKey...)
	end := append(append([]byte{}, prefix...), highKey...)
	for k, v := c.Seek(start); k != nil && bytesLessOrEqual(k, end); k, v = c.Next() {
		if !bytesHasPrefix(k, prefix) {
			break
		}
		bm, err := codec.DecodePostings(v)
		if err != nil {
			return nil, fmt.Errorf("decode %s[%x]: %w", t.table, k, err)
		}
		out.Or(bm)
	}
	return out, nil
}

// PrefixMatch calls match(key-suffix-after-prefix) for every key under
// prefix and unions the bitmaps of every key match accepts (used by the
// filter grammar's CONTAINS operator).
func (t PostingsTable) PrefixMatch(tx *bbolt.Tx, prefix []byte, match func(suffix []byte) bool) (*roaring.Bitmap, error) {
	out := roaring.New()
	c := tx.Bucket([]byte(t.table)).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytesHasPrefix(k, prefix); k, v = c.Next() {
		if !match(k[len(prefix):]) {
			continue
		}
		bm, err := codec.DecodePostings(v)
		if err != nil {
			return nil, fmt.Errorf("decode %s[%x]: %w", t.table, k, err)
		}
		out.Or(bm)
	}
	return out, nil
}

// ForEachPrefix calls fn with the key suffix after prefix and its decoded
// bitmap, in key order, for every key under prefix. Used by the Attribute
// ranking rule to walk every fid a term matched under (`word_fid_docids`)
// and by the Sort rule to walk a facet field's values in already-sorted
// key order (the sign-preserving f64 key encoding makes key order equal
// numeric order, so no separate tree structure is needed for this walk).
func (t PostingsTable) ForEachPrefix(tx *bbolt.Tx, prefix []byte, fn func(suffix []byte, bm *roaring.Bitmap) error) error {
	c := tx.Bucket([]byte(t.table)).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytesHasPrefix(k, prefix); k, v = c.Next() {
		bm, err := codec.DecodePostings(v)
		if err != nil {
			return fmt.Errorf("decode %s[%x]: %w", t.table, k, err)
		}
		if err := fn(k[len(prefix):], bm); err != nil {
			return err
		}
	}
	return nil
}

func bytesHasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i, b := range prefix {
		if k[i] != b {
			return false
		}
	}
	return true
}

func bytesLessOrEqual(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) <= len(b)
}
