package codec

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bm(ids ...uint32) *roaring.Bitmap {
	b := roaring.New()
	for _, id := range ids {
		b.Add(id)
	}
	return b
}

func TestMergeAddsAndRemoves(t *testing.T) {
	prev := bm(1, 2, 3)
	merged, outcome := Merge(prev, Delta{Del: bm(2), Add: bm(4)})
	assert.Equal(t, Write, outcome)
	assert.True(t, merged.Equals(bm(1, 3, 4)))
}

func TestMergeEmptyResultReportsDelete(t *testing.T) {
	prev := bm(1)
	merged, outcome := Merge(prev, Delta{Del: bm(1)})
	assert.Equal(t, Delete, outcome)
	assert.True(t, merged.IsEmpty())
}

func TestMergeNoChangeReportsIgnore(t *testing.T) {
	prev := bm(1, 2)
	_, outcome := Merge(prev, Delta{Add: bm(1)})
	assert.Equal(t, Ignore, outcome)
}

func TestMergeNilPreviousTreatedAsEmpty(t *testing.T) {
	merged, outcome := Merge(nil, Delta{Add: bm(5)})
	assert.Equal(t, Write, outcome)
	assert.True(t, merged.Equals(bm(5)))
}

func TestMergeSerializedRoundTrips(t *testing.T) {
	prev := bm(1, 2, 3)
	prevData, err := EncodePostings(prev)
	require.NoError(t, err)

	out, outcome, err := MergeSerialized(prevData, Delta{Del: bm(2), Add: bm(10)})
	require.NoError(t, err)
	assert.Equal(t, Write, outcome)

	decoded, err := DecodePostings(out)
	require.NoError(t, err)
	assert.True(t, decoded.Equals(bm(1, 3, 10)))
}

func TestMergeSerializedAbsentPrevious(t *testing.T) {
	out, outcome, err := MergeSerialized(nil, Delta{Add: bm(1, 2)})
	require.NoError(t, err)
	assert.Equal(t, Write, outcome)

	decoded, err := DecodePostings(out)
	require.NoError(t, err)
	assert.True(t, decoded.Equals(bm(1, 2)))
}

func TestMergeIsAssociativeCommutative(t *testing.T) {
	base := bm(1, 2, 3)
	d1 := Delta{Del: bm(1), Add: bm(5)}
	d2 := Delta{Del: bm(2), Add: bm(6)}
	assert.True(t, AreAssociativeCommutative(base, d1, d2))
}
