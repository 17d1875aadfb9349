// Package codec implements the on-disk encodings shared by every table in
// the index store: roaring-with-threshold postings, sign-preserving facet
// keys, compressed document blobs, and Del/Add delta merging.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// Threshold is the small-set cutoff below which postings are stored as a
// packed array of little-endian u32s (the same byte order on every host,
// whatever its native order) instead of a serialized roaring
// bitmap. This constant is embedded in every serialized payload; changing
// it breaks on-disk compatibility with bitmaps written by a prior value,
// so it must never be tuned (spec's small-roaring threshold).
const Threshold = 7

// EncodePostings serializes a set of docids using the roaring-with-threshold
// form: n <= Threshold encodes as a packed []u32 (size n*4), otherwise the
// standard serialized roaring container. The two forms are distinguishable
// on decode because a small-form payload of n elements is always exactly
// n*4 bytes, while a roaring container carries its own header and is never
// that size for the same cardinality (size-on-disk identifies the form).
func EncodePostings(bm *roaring.Bitmap) ([]byte, error) {
	n := bm.GetCardinality()
	if n <= Threshold {
		return encodeSmall(bm), nil
	}
	return bm.ToBytes()
}

// DecodePostings parses a payload written by EncodePostings.
func DecodePostings(data []byte) (*roaring.Bitmap, error) {
	if isSmallForm(data) {
		return decodeSmall(data), nil
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode roaring postings: %w", err)
	}
	return bm, nil
}

// isSmallForm reports whether data is the packed small-set array form
// rather than a serialized roaring bitmap: size-on-disk identifies the
// form, since EncodePostings only writes the roaring form for cardinalities
// > Threshold, and a roaring container's header overhead always pushes
// those serialized sizes past Threshold*4 bytes.
func isSmallForm(data []byte) bool {
	return len(data) <= Threshold*4 && len(data)%4 == 0
}

func encodeSmall(bm *roaring.Bitmap) []byte {
	n := bm.GetCardinality()
	out := make([]byte, 0, n*4)
	it := bm.Iterator()
	var buf [4]byte
	for it.HasNext() {
		binary.LittleEndian.PutUint32(buf[:], it.Next())
		out = append(out, buf[:]...)
	}
	return out
}

func decodeSmall(data []byte) *roaring.Bitmap {
	bm := roaring.New()
	for off := 0; off+4 <= len(data); off += 4 {
		bm.Add(binary.LittleEndian.Uint32(data[off : off+4]))
	}
	return bm
}

// IntersectWithSerialized intersects ids against a serialized postings
// payload without materialising a bitmap for the small form — the fast
// path the spec calls out for posting-list lookups during query execution.
func IntersectWithSerialized(data []byte, candidate uint32) (bool, error) {
	if isSmallForm(data) {
		for off := 0; off+4 <= len(data); off += 4 {
			if binary.LittleEndian.Uint32(data[off:off+4]) == candidate {
				return true, nil
			}
		}
		return false, nil
	}
	bm, err := DecodePostings(data)
	if err != nil {
		return false, err
	}
	return bm.Contains(candidate), nil
}

// ExpectedSmallSize returns the exact byte size a small-form payload of
// cardinality n must have; used by tests and invariant checks to assert
// bit-exactness of the threshold encoding.
func ExpectedSmallSize(n uint64) int {
	return int(n) * 4
}

// Equal reports whether two serialized postings payloads decode to the same
// set, regardless of which form either was written in.
func Equal(a, b []byte) (bool, error) {
	if bytes.Equal(a, b) {
		return true, nil
	}
	ba, err := DecodePostings(a)
	if err != nil {
		return false, err
	}
	bb, err := DecodePostings(b)
	if err != nil {
		return false, err
	}
	return ba.Equals(bb), nil
}
