package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/vellum"
	"go.etcd.io/bbolt"
)

const externalIdsFSTKey = "fst"

// DocidAllocator owns the external<->internal docid bijection (spec
// invariant 1) and the free-list of reclaimed docids (spec §3.4 "Ids are
// re-used from a free-list ... to bound fragmentation").
//
// The allocator's state (the bimap and the free-list) is persisted as JSON
// in `main` and loaded back from there. Save also rebuilds an FST mapping
// external id bytes to internal docid (spec §3.2 `external_documents_ids`)
// from the full in-memory map every time; the allocator itself never reads
// that FST, which is reachable only through OpenExternalIdsFST.
type DocidAllocator struct {
	mu sync.RWMutex

	externalToInternal map[string]uint32
	internalToExternal map[uint32]string

	free    []uint32
	nextDoc uint32
}

func newDocidAllocator() *DocidAllocator {
	return &DocidAllocator{
		externalToInternal: make(map[string]uint32),
		internalToExternal: make(map[uint32]string),
	}
}

// Lookup returns the internal docid for an external id, if assigned.
func (d *DocidAllocator) Lookup(external string) (uint32, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.externalToInternal[external]
	return id, ok
}

// ExternalID returns the external id for an internal docid.
func (d *DocidAllocator) ExternalID(docid uint32) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ext, ok := d.internalToExternal[docid]
	return ext, ok
}

// Assign returns the existing docid for external if present (an update),
// or allocates one from the free-list / next high-water mark (spec §4.3.2
// step 2 "Docid assignment").
func (d *DocidAllocator) Assign(external string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.externalToInternal[external]; ok {
		return id
	}

	var id uint32
	if n := len(d.free); n > 0 {
		id = d.free[n-1]
		d.free = d.free[:n-1]
	} else {
		id = d.nextDoc
		d.nextDoc++
	}

	d.externalToInternal[external] = id
	d.internalToExternal[id] = external
	return id
}

// Free releases a docid back to the free-list on deletion, maintaining the
// bijection in both directions within the same transaction (spec
// invariant 1).
func (d *DocidAllocator) Free(docid uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ext, ok := d.internalToExternal[docid]
	if !ok {
		return
	}
	delete(d.internalToExternal, docid)
	delete(d.externalToInternal, ext)
	d.free = append(d.free, docid)
}

// Count returns the number of live docids.
func (d *DocidAllocator) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.internalToExternal)
}

// Live returns the bitmap of every currently-assigned internal docid, the
// starting universe a search restricts via filters and query matches (spec
// §4.4 "the universe is every live docid").
func (d *DocidAllocator) Live() *roaring.Bitmap {
	d.mu.RLock()
	defer d.mu.RUnlock()
	bm := roaring.New()
	for id := range d.internalToExternal {
		bm.Add(id)
	}
	return bm
}

type docidAllocatorState struct {
	ExternalToInternal map[string]uint32 `json:"external_to_internal"`
	Free               []uint32          `json:"free"`
	NextDoc            uint32            `json:"next_doc"`
}

// LoadDocidAllocator reads the persisted bimap and free-list from main.
func LoadDocidAllocator(e *Environment) (*DocidAllocator, error) {
	var data []byte
	err := e.db.View(func(tx *bbolt.Tx) error {
		data = tx.Bucket([]byte(tableMain)).Get([]byte(mainKeyFreeDocids))
		return nil
	})
	if err != nil {
		return nil, err
	}

	d := newDocidAllocator()
	if len(data) == 0 {
		return d, nil
	}

	var state docidAllocatorState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode docid allocator state: %w", err)
	}
	d.externalToInternal = state.ExternalToInternal
	d.free = state.Free
	d.nextDoc = state.NextDoc
	for ext, id := range d.externalToInternal {
		d.internalToExternal[id] = ext
	}
	return d, nil
}

// Save persists the allocator state and rebuilds the external_documents_ids
// FST from the current bimap, within tx (spec §4.3.2 step 7 "Commit").
func (d *DocidAllocator) Save(tx *bbolt.Tx) error {
	d.mu.RLock()
	state := docidAllocatorState{
		ExternalToInternal: d.externalToInternal,
		Free:               d.free,
		NextDoc:            d.nextDoc,
	}
	d.mu.RUnlock()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal docid allocator state: %w", err)
	}
	if err := tx.Bucket([]byte(tableMain)).Put([]byte(mainKeyFreeDocids), data); err != nil {
		return err
	}

	fstBytes, err := d.buildFST()
	if err != nil {
		return fmt.Errorf("build external_documents_ids fst: %w", err)
	}
	return tx.Bucket([]byte(tableExternalDocumentsIds)).Put([]byte(externalIdsFSTKey), fstBytes)
}

func (d *DocidAllocator) buildFST() ([]byte, error) {
	d.mu.RLock()
	keys := make([]string, 0, len(d.externalToInternal))
	for k := range d.externalToInternal {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		d.mu.RUnlock()
		return nil, err
	}
	for _, k := range keys {
		if err := builder.Insert([]byte(k), uint64(d.externalToInternal[k])); err != nil {
			d.mu.RUnlock()
			return nil, err
		}
	}
	d.mu.RUnlock()

	if err := builder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// OpenExternalIdsFST loads the persisted FST for read-only lookups (e.g.
// from the query pipeline resolving a filter on the primary key).
func OpenExternalIdsFST(e *Environment) (*vellum.FST, error) {
	var data []byte
	err := e.db.View(func(tx *bbolt.Tx) error {
		data = tx.Bucket([]byte(tableExternalDocumentsIds)).Get([]byte(externalIdsFSTKey))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return vellum.Load(data)
}
