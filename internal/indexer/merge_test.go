package indexer

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/store"
)

func fetchStoredDocument(t *testing.T, env *store.Environment, docid uint32) RawDocument {
	t.Helper()
	var got RawDocument
	err := env.View(func(tx *bbolt.Tx) error {
		var err error
		got, err = decodeStoredDocument(tx, env, docid)
		return err
	})
	require.NoError(t, err)
	return got
}

func openTestEnv(t *testing.T) *store.Environment {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "idx")
	env, err := store.Open(dir, store.OpenOptions{ReadTxnPoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestCommitterCommitWritesPostingsAndDocumentBlob(t *testing.T) {
	env := openTestEnv(t)
	fields := env.Fields()
	x := NewExtractor(fields, testSettings())

	ch := DocumentChange{
		Kind:  Insertion,
		Docid: 1,
		Merged: map[string]json.RawMessage{
			"title": raw(t, "quick brown fox"),
		},
	}
	d, err := x.Extract(ch)
	require.NoError(t, err)

	c := NewCommitter(env)
	result, err := c.Commit([]DocumentChange{ch}, []*Deltas{d})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentsWritten)
	assert.Contains(t, result.ModifiedWords, "quick")

	got := fetchStoredDocument(t, env, 1)
	require.NotNil(t, got)
	assert.Contains(t, got, "title")
}

func TestCommitterCommitDeletionRemovesDocumentBlob(t *testing.T) {
	env := openTestEnv(t)
	fields := env.Fields()
	x := NewExtractor(fields, testSettings())
	c := NewCommitter(env)

	insert := DocumentChange{
		Kind:  Insertion,
		Docid: 7,
		Merged: map[string]json.RawMessage{
			"title": raw(t, "moby dick"),
		},
	}
	d, err := x.Extract(insert)
	require.NoError(t, err)
	_, err = c.Commit([]DocumentChange{insert}, []*Deltas{d})
	require.NoError(t, err)

	del := DocumentChange{
		Kind:  Deletion,
		Docid: 7,
		Current: map[string]json.RawMessage{
			"title": raw(t, "moby dick"),
		},
	}
	dd, err := x.Extract(del)
	require.NoError(t, err)
	result, err := c.Commit([]DocumentChange{del}, []*Deltas{dd})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentsDeleted)

	got := fetchStoredDocument(t, env, 7)
	assert.Nil(t, got)
}
