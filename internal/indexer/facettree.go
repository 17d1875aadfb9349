package indexer

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/codec"
	"github.com/Aman-CERP/ftscore/internal/store"
)

// GroupSize is the fan-out of one facet-tree level: each level-N group
// summarises up to GroupSize level-(N-1) groups (spec SUPPLEMENTED
// FEATURES: "facet level group size", grounded on original_source's facet
// level-based search tree used to avoid scanning every distinct facet
// value during range/sort queries).
const GroupSize = 4

// MinLevelSize is the smallest number of level-0 entries for which a
// non-bulk rebuild builds higher levels at all; a bulk rebuild builds them
// whatever the count.
const MinLevelSize = GroupSize * GroupSize

// MaxGroupSize is a group-size bound for incremental rebalancing (spec
// §4.3.2 step 6 "bulk vs incremental rebalancing"). Nothing in this package
// reads it: every rebuild regroups level 0 from scratch, and the bulk
// decision is made by the committer's bulkThreshold.
const MaxGroupSize = GroupSize * 2

// FacetGroup is one node of a facet level tree: a contiguous run of
// distinct facet values (or, at level 0, a single value) summarised by the
// union of its members' docids and its min/max bounds.
type FacetGroup struct {
	Level   int
	MinKey  []byte
	MaxKey  []byte
	Docids  *roaring.Bitmap
	Members [][]byte // level-0 keys this group spans, in key order
}

// FacetTreeBuilder rebuilds the level tree for one facet field (spec
// SUPPLEMENTED FEATURES: facet-level tree). The higher levels are written
// to a separate "<table>_levels" table; filter evaluation, sorting and
// facet distribution read level 0 only and do not consult them.
type FacetTreeBuilder struct {
	env *store.Environment
}

// NewFacetTreeBuilder builds a rebuilder bound to env.
func NewFacetTreeBuilder(env *store.Environment) *FacetTreeBuilder {
	return &FacetTreeBuilder{env: env}
}

// RebuildF64 rebuilds the numeric facet tree for fid from the current
// facet_id_f64_docids level-0 entries. Every level above 0 is always
// recomputed from scratch; there is no incremental update of individual
// groups. isBulk only decides what happens when level 0 has fewer than
// MinLevelSize entries: a bulk rebuild still builds the levels, a non-bulk
// one leaves the stored levels untouched. The committer sets it per fid
// from how many keys the commit touched (CommitResult.FacetFidDeltas).
func (b *FacetTreeBuilder) RebuildF64(fid uint16, isBulk bool) error {
	return b.rebuild(fid, "facet_id_f64_docids", isBulk)
}

// RebuildString rebuilds the string facet tree for fid.
func (b *FacetTreeBuilder) RebuildString(fid uint16, isBulk bool) error {
	return b.rebuild(fid, "facet_id_string_docids", isBulk)
}

func (b *FacetTreeBuilder) rebuild(fid uint16, table string, isBulk bool) error {
	return b.env.Update(func(tx *bbolt.Tx) error {
		prefix := store.BEUint16(fid)
		var level0 []FacetGroup

		c := tx.Bucket([]byte(table)).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			bm, err := codec.DecodePostings(v)
			if err != nil {
				return err
			}
			keyCopy := append([]byte(nil), k...)
			level0 = append(level0, FacetGroup{
				Level:   0,
				MinKey:  keyCopy,
				MaxKey:  keyCopy,
				Docids:  bm,
				Members: [][]byte{keyCopy},
			})
		}

		if len(level0) < MinLevelSize && !isBulk {
			return nil // too few distinct values to benefit from a second level
		}

		sort.Slice(level0, func(i, j int) bool {
			return string(level0[i].MinKey) < string(level0[j].MinKey)
		})

		levels := [][]FacetGroup{level0}
		for len(levels[len(levels)-1]) > 1 {
			next := buildLevel(levels[len(levels)-1])
			if len(next) == len(levels[len(levels)-1]) {
				break // fan-out collapsed to 1:1, stop climbing
			}
			levels = append(levels, next)
		}

		return writeFacetLevels(tx, fid, table, levels[1:])
	})
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func buildLevel(prev []FacetGroup) []FacetGroup {
	var next []FacetGroup
	for i := 0; i < len(prev); i += GroupSize {
		end := i + GroupSize
		if end > len(prev) {
			end = len(prev)
		}
		group := prev[i:end]

		union := roaring.New()
		var members [][]byte
		for _, g := range group {
			union.Or(g.Docids)
			members = append(members, g.Members...)
		}

		next = append(next, FacetGroup{
			Level:   prev[0].Level + 1,
			MinKey:  group[0].MinKey,
			MaxKey:  group[len(group)-1].MaxKey,
			Docids:  union,
			Members: members,
		})
	}
	return next
}

// facetLevelsTableName derives the on-disk table a given base facet table's
// higher levels are stored under (level 0 stays in the base table itself).
func facetLevelsTableName(table string) string {
	return table + "_levels"
}

func writeFacetLevels(tx *bbolt.Tx, fid uint16, table string, levels [][]FacetGroup) error {
	levelsTable := facetLevelsTableName(table)
	bucket, err := tx.CreateBucketIfNotExists([]byte(levelsTable))
	if err != nil {
		return err
	}

	// clear this fid's previous higher levels before writing the rebuilt set.
	prefix := store.BEUint16(fid)
	c := bucket.Cursor()
	var stale [][]byte
	for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}

	for _, level := range levels {
		for i, g := range level {
			encoded, err := codec.EncodePostings(g.Docids)
			if err != nil {
				return err
			}
			key := append(append([]byte{}, prefix...), byte(g.Level))
			key = append(key, store.BEUint32(uint32(i))...)
			if err := bucket.Put(key, encoded); err != nil {
				return err
			}
		}
	}
	return nil
}
