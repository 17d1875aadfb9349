package indexer

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func TestFacetTreeBuilderRebuildF64BuildsHigherLevels(t *testing.T) {
	env := openTestEnv(t)
	fields := env.Fields()
	s := testSettings()
	x := NewExtractor(fields, s)
	c := NewCommitter(env)
	tree := NewFacetTreeBuilder(env)

	var changes []DocumentChange
	var deltas []*Deltas
	for i := 0; i < MinLevelSize+1; i++ {
		ch := DocumentChange{
			Kind:  Insertion,
			Docid: uint32(i),
			Merged: map[string]json.RawMessage{
				"rating": raw(t, float64(i)),
			},
		}
		d, err := x.Extract(ch)
		require.NoError(t, err)
		changes = append(changes, ch)
		deltas = append(deltas, d)
	}

	result, err := c.Commit(changes, deltas)
	require.NoError(t, err)

	delta, ok := result.FacetFidDeltas[0]
	require.True(t, ok, "rating's fid should have recorded facet changes")

	require.NoError(t, tree.RebuildF64(delta.Fid, true))

	// 17 level-0 values group by GroupSize=4 into 5, then 2, then 1 group.
	var levelKeys int
	err = env.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(facetLevelsTableName("facet_id_f64_docids")))
		require.NotNil(t, b)
		return b.ForEach(func(_, _ []byte) error {
			levelKeys++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 8, levelKeys)
}

func TestFacetTreeBuilderSkipsTooFewValuesWhenIncremental(t *testing.T) {
	env := openTestEnv(t)
	fields := env.Fields()
	x := NewExtractor(fields, testSettings())
	c := NewCommitter(env)
	tree := NewFacetTreeBuilder(env)

	ch := DocumentChange{
		Kind:  Insertion,
		Docid: 1,
		Merged: map[string]json.RawMessage{
			"rating": raw(t, 4.0),
		},
	}
	d, err := x.Extract(ch)
	require.NoError(t, err)
	result, err := c.Commit([]DocumentChange{ch}, []*Deltas{d})
	require.NoError(t, err)

	delta, ok := result.FacetFidDeltas[0]
	require.True(t, ok)
	assert.False(t, delta.Bulk, fmt.Sprintf("a single facet key touched (count=%d) should not be flagged bulk", delta.Count))
	require.NoError(t, tree.RebuildF64(delta.Fid, false))
}
