package indexer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/blevesearch/vellum"
)

func TestFSTMaintainerRebuildBuildsWordsFST(t *testing.T) {
	env := openTestEnv(t)
	fields := env.Fields()
	x := NewExtractor(fields, testSettings())
	c := NewCommitter(env)
	fst := NewFSTMaintainer(env)

	ch := DocumentChange{
		Kind:  Insertion,
		Docid: 1,
		Merged: map[string]json.RawMessage{
			"title": raw(t, "quick brown fox"),
		},
	}
	d, err := x.Extract(ch)
	require.NoError(t, err)

	result, err := c.Commit([]DocumentChange{ch}, []*Deltas{d})
	require.NoError(t, err)

	require.NoError(t, fst.Rebuild(result))

	var data []byte
	err = env.View(func(tx *bbolt.Tx) error {
		data = tx.Bucket([]byte("main")).Get([]byte("words_fst"))
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, data)

	loaded, err := vellum.Load(data)
	require.NoError(t, err)
	_, hit, err := loaded.Get([]byte("quick"))
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestFSTMaintainerRebuildProducesPrefixPostings(t *testing.T) {
	env := openTestEnv(t)
	fields := env.Fields()
	x := NewExtractor(fields, testSettings())
	c := NewCommitter(env)
	fst := NewFSTMaintainer(env)

	ch := DocumentChange{
		Kind:  Insertion,
		Docid: 1,
		Merged: map[string]json.RawMessage{
			"title": raw(t, "quicksand quicken quick"),
		},
	}
	d, err := x.Extract(ch)
	require.NoError(t, err)
	result, err := c.Commit([]DocumentChange{ch}, []*Deltas{d})
	require.NoError(t, err)
	require.NoError(t, fst.Rebuild(result))

	var data []byte
	err = env.View(func(tx *bbolt.Tx) error {
		data = tx.Bucket([]byte("word_prefix_docids")).Get([]byte("quic"))
		return nil
	})
	require.NoError(t, err)
	assert.NotNil(t, data, "prefix 'quic' should have a merged postings entry")
}
