package indexer

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/store"
)

// ringCapacity is a capacity for in-flight Deltas batches (spec §4.3.2
// step 5 "bounded multi-producer ring of byte messages"). Nothing reads it:
// the merge stage has no ring, since Commit receives every Deltas of a
// batch at once as a slice.
const ringCapacity = 64

// Committer is the single-threaded consumer that applies extracted Deltas
// against C2's posting tables inside one write transaction (spec §4.3.2
// step 5 "Merge-and-write"). Commit receives the batch's Deltas as a slice,
// collected after every extraction worker has finished, and applies them
// sequentially so there is exactly one writer.
type Committer struct {
	env *store.Environment
}

// NewCommitter builds a committer bound to env.
func NewCommitter(env *store.Environment) *Committer {
	return &Committer{env: env}
}

// FacetFidDelta records, per fid, whether the commit's facet changes for
// that field were a bulk rewrite (many keys) or incremental (few keys),
// determining how post-processing rebuilds the facet tree (spec §4.3.2
// step 6 "Facet levels").
type FacetFidDelta struct {
	Fid   uint16
	Bulk  bool
	Count int
}

// CommitResult summarizes what a commit changed, feeding post-processing.
type CommitResult struct {
	ModifiedWords    map[string]struct{}
	DeletedWords     map[string]struct{}
	FacetFidDeltas   map[uint16]*FacetFidDelta
	DocumentsWritten int
	DocumentsDeleted int
}

func newCommitResult() *CommitResult {
	return &CommitResult{
		ModifiedWords:  map[string]struct{}{},
		DeletedWords:   map[string]struct{}{},
		FacetFidDeltas: map[uint16]*FacetFidDelta{},
	}
}

// bulkThreshold is the number of facet keys touched for one fid above
// which the facet-level rebuild is treated as bulk rather than incremental
// (spec §4.3.2 step 6).
const bulkThreshold = 32

// Commit applies a batch of per-document Deltas plus document-blob writes
// in a single write transaction, returning a summary for post-processing.
func (c *Committer) Commit(changes []DocumentChange, deltas []*Deltas) (*CommitResult, error) {
	result := newCommitResult()

	err := c.env.Update(func(tx *bbolt.Tx) error {
		for i, d := range deltas {
			docid := changes[i].Docid

			if err := applyAll(tx, c.env, d, result); err != nil {
				return fmt.Errorf("commit docid %d: %w", docid, err)
			}

			switch changes[i].Kind {
			case Deletion:
				if err := c.env.DeleteDocument(tx, docid); err != nil {
					return err
				}
				result.DocumentsDeleted++
			default:
				if d.DocumentBlob != nil {
					if err := c.env.PutDocument(tx, docid, d.DocumentBlob); err != nil {
						return err
					}
					result.DocumentsWritten++
				}
			}
		}

		return c.env.SaveFieldsMap(tx, c.env.Fields())
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func applyAll(tx *bbolt.Tx, env *store.Environment, d *Deltas, result *CommitResult) error {
	for k, delta := range d.WordDocids {
		if err := env.WordDocids().ApplyDelta(tx, []byte(k), delta); err != nil {
			return err
		}
		if delta.Add != nil && !delta.Add.IsEmpty() {
			result.ModifiedWords[k] = struct{}{}
		}
		if delta.Del != nil && !delta.Del.IsEmpty() {
			result.DeletedWords[k] = struct{}{}
		}
	}
	for k, delta := range d.ExactWordDocids {
		if err := env.ExactWordDocids().ApplyDelta(tx, []byte(k), delta); err != nil {
			return err
		}
	}
	for k, delta := range d.WordPairProximityDocids {
		if err := env.WordPairProximityDocids().ApplyDelta(tx, []byte(k), delta); err != nil {
			return err
		}
	}
	for k, delta := range d.WordPositionDocids {
		if err := env.WordPositionDocids().ApplyDelta(tx, []byte(k), delta); err != nil {
			return err
		}
	}
	for k, delta := range d.WordFidDocids {
		if err := env.WordFidDocids().ApplyDelta(tx, []byte(k), delta); err != nil {
			return err
		}
	}
	for k, delta := range d.FieldIdWordCountDocids {
		if err := env.FieldIdWordCountDocids().ApplyDelta(tx, []byte(k), delta); err != nil {
			return err
		}
	}
	for k, delta := range d.FacetF64Docids {
		if err := env.FacetIdF64Docids().ApplyDelta(tx, []byte(k), delta); err != nil {
			return err
		}
		recordFacetDelta(result, k)
	}
	for k, delta := range d.FacetStringDocids {
		if err := env.FacetIdStringDocids().ApplyDelta(tx, []byte(k), delta); err != nil {
			return err
		}
		recordFacetDelta(result, k)
	}
	for k, delta := range d.FacetExistsDocids {
		if err := env.FacetIdExistsDocids().ApplyDelta(tx, []byte(k), delta); err != nil {
			return err
		}
	}
	for k, delta := range d.FacetIsNullDocids {
		if err := env.FacetIdIsNullDocids().ApplyDelta(tx, []byte(k), delta); err != nil {
			return err
		}
	}
	for k, delta := range d.FacetIsEmptyDocids {
		if err := env.FacetIdIsEmptyDocids().ApplyDelta(tx, []byte(k), delta); err != nil {
			return err
		}
	}
	for k, v := range d.FacetF64Values {
		fid, docid := splitFacetValueKey(k)
		if v == nil {
			if err := env.DeleteFacetF64Value(tx, fid, docid); err != nil {
				return err
			}
			continue
		}
		if err := env.PutFacetF64Value(tx, fid, docid, *v); err != nil {
			return err
		}
	}
	for k, v := range d.FacetStringValues {
		fid, docid := splitFacetValueKey(k)
		if v == nil {
			if err := env.DeleteFacetStringValue(tx, fid, docid); err != nil {
				return err
			}
			continue
		}
		if err := env.PutFacetStringValue(tx, fid, docid, *v); err != nil {
			return err
		}
	}
	for k, p := range d.GeoPoints {
		docid := binary.BigEndian.Uint32([]byte(k))
		if p == nil {
			if err := env.DeleteGeoPoint(tx, docid); err != nil {
				return err
			}
			continue
		}
		if err := env.PutGeoPoint(tx, docid, *p); err != nil {
			return err
		}
	}
	return nil
}

// splitFacetValueKey decodes the fid(BE u16)+docid(BE u32) composite key
// used by FacetF64Values/FacetStringValues.
func splitFacetValueKey(key string) (uint16, uint32) {
	b := []byte(key)
	if len(b) < 6 {
		return 0, 0
	}
	fid := uint16(b[0])<<8 | uint16(b[1])
	docid := uint32(b[2])<<24 | uint32(b[3])<<16 | uint32(b[4])<<8 | uint32(b[5])
	return fid, docid
}

func recordFacetDelta(result *CommitResult, key string) {
	if len(key) < 2 {
		return
	}
	fid := uint16(key[0])<<8 | uint16(key[1])
	d, ok := result.FacetFidDeltas[fid]
	if !ok {
		d = &FacetFidDelta{Fid: fid}
		result.FacetFidDeltas[fid] = d
	}
	d.Count++
	if d.Count > bulkThreshold {
		d.Bulk = true
	}
}
