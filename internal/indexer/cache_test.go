package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractionCacheGetPutRoundTrips(t *testing.T) {
	c, err := NewExtractionCache(2)
	require.NoError(t, err)

	d := newDeltas()
	c.Put("doc-1", d)

	got, ok := c.Get("doc-1")
	assert.True(t, ok)
	assert.Same(t, d, got)
}

func TestExtractionCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewExtractionCache(1)
	require.NoError(t, err)

	c.Put("a", newDeltas())
	c.Put("b", newDeltas())

	_, ok := c.Get("a")
	assert.False(t, ok, "a should have been evicted once capacity was exceeded")

	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestExtractionCachePurgeClearsEntries(t *testing.T) {
	c, err := NewExtractionCache(4)
	require.NoError(t, err)
	c.Put("x", newDeltas())
	require.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
