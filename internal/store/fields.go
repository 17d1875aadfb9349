package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.etcd.io/bbolt"
)

// FieldsMap is the persisted bijection between field names and 16-bit field
// ids (spec §3.1 "Field id"). A fid is assigned the first time a field name
// is seen and is never recycled while the index exists.
type FieldsMap struct {
	mu        sync.RWMutex
	nameToFid map[string]uint16
	fidToName map[uint16]string
	next      uint16
}

func newFieldsMap() *FieldsMap {
	return &FieldsMap{
		nameToFid: make(map[string]uint16),
		fidToName: make(map[uint16]string),
	}
}

// NewFieldsMap returns an empty fields-ids map, for callers building an
// Extractor against a fields map that is not yet attached to an Environment
// (e.g. tests, or migration tooling working on a detached snapshot).
func NewFieldsMap() *FieldsMap {
	return newFieldsMap()
}

// ID returns the fid for name and whether name is known. It never assigns a
// fid; GetOrCreate does that.
func (f *FieldsMap) ID(name string) (uint16, bool) {
	f.mu.RLock()
	fid, ok := f.nameToFid[name]
	f.mu.RUnlock()
	return fid, ok
}

// Name returns the field name for fid.
func (f *FieldsMap) Name(fid uint16) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	name, ok := f.fidToName[fid]
	return name, ok
}

// GetOrCreate returns the existing fid for name, or assigns and records a
// new one. The caller is responsible for persisting the map in the same
// write transaction that introduced the field.
func (f *FieldsMap) GetOrCreate(name string) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fid, ok := f.nameToFid[name]; ok {
		return fid
	}
	fid := f.next
	f.next++
	f.nameToFid[name] = fid
	f.fidToName[fid] = name
	return fid
}

// Names returns every known field name, sorted, for deterministic iteration
// (e.g. building searchable-attribute weight order).
func (f *FieldsMap) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.nameToFid))
	for n := range f.nameToFid {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type fieldsMapEntry struct {
	Name string `json:"name"`
	Fid  uint16 `json:"fid"`
}

func (f *FieldsMap) marshal() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entries := make([]fieldsMapEntry, 0, len(f.nameToFid))
	for name, fid := range f.nameToFid {
		entries = append(entries, fieldsMapEntry{Name: name, Fid: fid})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Fid < entries[j].Fid })
	return json.Marshal(entries)
}

func unmarshalFieldsMap(data []byte) (*FieldsMap, error) {
	fm := newFieldsMap()
	if len(data) == 0 {
		return fm, nil
	}
	var entries []fieldsMapEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode fields-ids map: %w", err)
	}
	for _, e := range entries {
		fm.nameToFid[e.Name] = e.Fid
		fm.fidToName[e.Fid] = e.Name
		if e.Fid >= fm.next {
			fm.next = e.Fid + 1
		}
	}
	return fm, nil
}

// loadFieldsMap reads the persisted fields-ids map from main, or returns an
// empty one if the index is new.
func loadFieldsMap(e *Environment) (*FieldsMap, error) {
	var data []byte
	err := e.db.View(func(tx *bbolt.Tx) error {
		data = tx.Bucket([]byte(tableMain)).Get([]byte(mainKeyFieldsMap))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unmarshalFieldsMap(data)
}

// SaveFieldsMap persists the current in-memory fields map inside tx, and
// must be called within the same write transaction that introduced any new
// field (spec §4.3.2 step 7 "Commit ... Update fields-ids map").
func (e *Environment) SaveFieldsMap(tx *bbolt.Tx, fm *FieldsMap) error {
	data, err := fm.marshal()
	if err != nil {
		return fmt.Errorf("marshal fields-ids map: %w", err)
	}
	return tx.Bucket([]byte(tableMain)).Put([]byte(mainKeyFieldsMap), data)
}

// WordsFST returns the raw bytes of the persisted words FST (spec §3.2
// `words_fst`), or nil if the index has no indexed words yet. Query-side
// callers (internal/query.NewLexicon) load this once per search.
func (e *Environment) WordsFST(tx *bbolt.Tx) []byte {
	return tx.Bucket([]byte(tableMain)).Get([]byte(mainKeyWordsFST))
}

// IsNestedPath reports whether a filterable/sortable attribute pattern
// like "author.*" matches field name, supporting the wildcard/nested-path
// patterns spec §4.2 calls out for filterable attributes.
func IsNestedPath(pattern, field string) bool {
	if pattern == field {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(field, prefix)
	}
	if pattern == "*" {
		return true
	}
	return false
}
