package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func TestDocidAllocatorAssignIsStableForExisting(t *testing.T) {
	d := newDocidAllocator()
	id1 := d.Assign("doc-a")
	id2 := d.Assign("doc-a")
	assert.Equal(t, id1, id2)
}

func TestDocidAllocatorAssignAllocatesFreshIds(t *testing.T) {
	d := newDocidAllocator()
	a := d.Assign("a")
	b := d.Assign("b")
	assert.NotEqual(t, a, b)
}

func TestDocidAllocatorFreeReusesIds(t *testing.T) {
	d := newDocidAllocator()
	a := d.Assign("a")
	d.Free(a)

	_, ok := d.Lookup("a")
	assert.False(t, ok)

	b := d.Assign("b")
	assert.Equal(t, a, b, "freed docid should be reused before allocating a new high-water mark")
}

func TestDocidAllocatorBijection(t *testing.T) {
	d := newDocidAllocator()
	id := d.Assign("external-1")

	ext, ok := d.ExternalID(id)
	require.True(t, ok)
	assert.Equal(t, "external-1", ext)

	got, ok := d.Lookup(ext)
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestDocidAllocatorSaveLoadRoundTrips(t *testing.T) {
	env := openTestEnv(t)
	d, err := LoadDocidAllocator(env)
	require.NoError(t, err)

	d.Assign("doc-1")
	d.Assign("doc-2")
	freed := d.Assign("doc-3")
	d.Free(freed)

	err = env.Update(func(tx *bbolt.Tx) error {
		return d.Save(tx)
	})
	require.NoError(t, err)

	reloaded, err := LoadDocidAllocator(env)
	require.NoError(t, err)
	assert.Equal(t, d.Count(), reloaded.Count())

	id, ok := reloaded.Lookup("doc-1")
	require.True(t, ok)
	ext, ok := reloaded.ExternalID(id)
	require.True(t, ok)
	assert.Equal(t, "doc-1", ext)
}

func TestOpenExternalIdsFSTReflectsSave(t *testing.T) {
	env := openTestEnv(t)
	d, err := LoadDocidAllocator(env)
	require.NoError(t, err)
	d.Assign("alpha")
	d.Assign("beta")

	err = env.Update(func(tx *bbolt.Tx) error {
		return d.Save(tx)
	})
	require.NoError(t, err)

	fst, err := OpenExternalIdsFST(env)
	require.NoError(t, err)
	require.NotNil(t, fst)

	id, exists, err := fst.Get([]byte("alpha"))
	require.NoError(t, err)
	require.True(t, exists)

	got, _ := d.Lookup("alpha")
	assert.Equal(t, uint64(got), id)
}
