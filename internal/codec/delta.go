package codec

import "github.com/RoaringBitmap/roaring/v2"

// MergeOutcome describes what a Del/Add merge produced, so callers know
// whether to write, delete, or skip the key entirely.
type MergeOutcome int

const (
	// Write means the merged set differs from previous and is non-empty:
	// the caller must write it back.
	Write MergeOutcome = iota
	// Delete means the merged set is empty: the caller must remove the key.
	Delete
	// Ignore means the merged set equals previous: no write is needed.
	Ignore
)

// Delta is a two-slot Del/Add contribution to a posting key, mirroring the
// spec's OBKV delta value `{Deletion -> old-postings, Addition -> new-postings}`.
type Delta struct {
	Del *roaring.Bitmap
	Add *roaring.Bitmap
}

// Merge applies new = (previous \ del) U add and reports the outcome
// (spec §4.1 "Merge semantics"). previous may be nil (key absent).
func Merge(previous *roaring.Bitmap, d Delta) (*roaring.Bitmap, MergeOutcome) {
	prev := previous
	if prev == nil {
		prev = roaring.New()
	}

	merged := prev.Clone()
	if d.Del != nil {
		merged.AndNot(d.Del)
	}
	if d.Add != nil {
		merged.Or(d.Add)
	}

	if merged.IsEmpty() {
		return merged, Delete
	}
	if merged.Equals(prev) {
		return merged, Ignore
	}
	return merged, Write
}

// MergeSerialized is the byte-level counterpart of Merge: it decodes
// previous (nil/empty means absent), applies the delta, and re-encodes
// with the roaring-with-threshold codec, matching what C3's merge-and-write
// stage does against the posting tables (spec §4.3.2 step 5).
func MergeSerialized(previous []byte, d Delta) ([]byte, MergeOutcome, error) {
	var prev *roaring.Bitmap
	if len(previous) == 0 {
		prev = roaring.New()
	} else {
		var err error
		prev, err = DecodePostings(previous)
		if err != nil {
			return nil, Ignore, err
		}
	}

	merged, outcome := Merge(prev, d)
	if outcome != Write {
		return nil, outcome, nil
	}

	out, err := EncodePostings(merged)
	if err != nil {
		return nil, Ignore, err
	}
	return out, Write, nil
}

// AreAssociativeCommutative is a property check used by tests: applying two
// deltas in either order over set difference/union yields the same result,
// matching the spec's requirement that the merge function be associative
// and commutative.
func AreAssociativeCommutative(base *roaring.Bitmap, d1, d2 Delta) bool {
	m1, _ := Merge(base, d1)
	combined, _ := Merge(m1, d2)

	m2, _ := Merge(base, d2)
	reversed, _ := Merge(m2, d1)

	return combined.Equals(reversed)
}
