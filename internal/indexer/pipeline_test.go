package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	env := openTestEnv(t)
	err := env.Update(func(tx *bbolt.Tx) error {
		return env.SaveSettings(tx, testSettings())
	})
	require.NoError(t, err)
	require.NoError(t, env.InvalidateCaches())

	p, err := NewPipeline(env, PipelineOptions{Concurrency: 2, CacheCapacity: 16})
	require.NoError(t, err)
	return p
}

func TestPipelineRunInsertsAndIndexesDocument(t *testing.T) {
	p := newTestPipeline(t)

	result, err := p.Run(Batch{
		PrimaryKey: "id",
		Upserts: []RawDocument{
			{
				"id":    raw(t, "1"),
				"title": raw(t, "quick brown fox"),
				"genre": raw(t, "fiction"),
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentsWritten)
	assert.Contains(t, result.ModifiedWords, "quick")
}

func TestPipelineRunUpdateReplacesPreviousWords(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.Run(Batch{
		PrimaryKey: "id",
		Upserts: []RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "old words here")},
		},
	})
	require.NoError(t, err)

	result, err := p.Run(Batch{
		PrimaryKey: "id",
		Upserts: []RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "new words here")},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, result.ModifiedWords, "new")
	assert.Contains(t, result.DeletedWords, "old")
}

func TestPipelineRunDeleteRemovesDocument(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.Run(Batch{
		PrimaryKey: "id",
		Upserts: []RawDocument{
			{"id": raw(t, "1"), "title": raw(t, "to be deleted")},
		},
	})
	require.NoError(t, err)

	result, err := p.Run(Batch{
		PrimaryKey: "id",
		Deletes:    []string{"1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentsDeleted)
}

func TestPipelineRunDeletingUnknownExternalIDIsNoop(t *testing.T) {
	p := newTestPipeline(t)

	result, err := p.Run(Batch{
		PrimaryKey: "id",
		Deletes:    []string{"never-indexed"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.DocumentsDeleted)
}
