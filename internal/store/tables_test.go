package store

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/codec"
)

func TestPostingsTableApplyDeltaWritesAndReads(t *testing.T) {
	env := openTestEnv(t)
	table := env.WordDocids()
	key := []byte("hello")

	err := env.Update(func(tx *bbolt.Tx) error {
		return table.ApplyDelta(tx, key, codec.Delta{Add: bmOf(1, 2, 3)})
	})
	require.NoError(t, err)

	var got *roaring.Bitmap
	err = env.View(func(tx *bbolt.Tx) error {
		var err error
		got, err = table.Get(tx, key)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equals(bmOf(1, 2, 3)))
}

func TestPostingsTableApplyDeltaDeletesWhenEmpty(t *testing.T) {
	env := openTestEnv(t)
	table := env.WordDocids()
	key := []byte("hello")

	err := env.Update(func(tx *bbolt.Tx) error {
		return table.ApplyDelta(tx, key, codec.Delta{Add: bmOf(1)})
	})
	require.NoError(t, err)

	err = env.Update(func(tx *bbolt.Tx) error {
		return table.ApplyDelta(tx, key, codec.Delta{Del: bmOf(1)})
	})
	require.NoError(t, err)

	err = env.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(tableWordDocids)).Get(key)
		assert.Nil(t, v)
		return nil
	})
	require.NoError(t, err)
}

func TestPostingsTableContainsSerializedSmallForm(t *testing.T) {
	env := openTestEnv(t)
	table := env.WordDocids()
	key := []byte("fox")

	err := env.Update(func(tx *bbolt.Tx) error {
		return table.ApplyDelta(tx, key, codec.Delta{Add: bmOf(7, 9)})
	})
	require.NoError(t, err)

	err = env.View(func(tx *bbolt.Tx) error {
		hit, err := table.ContainsSerialized(tx, key, 7)
		require.NoError(t, err)
		assert.True(t, hit)

		miss, err := table.ContainsSerialized(tx, key, 8)
		require.NoError(t, err)
		assert.False(t, miss)
		return nil
	})
	require.NoError(t, err)
}

func TestBEUint32AndBEUint16Ordering(t *testing.T) {
	assert.Less(t, string(BEUint32(1)), string(BEUint32(2)))
	assert.Less(t, string(BEUint16(1)), string(BEUint16(2)))
}

func bmOf(ids ...uint32) *roaring.Bitmap {
	b := roaring.New()
	for _, id := range ids {
		b.Add(id)
	}
	return b
}
