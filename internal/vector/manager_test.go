package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/config"
)

func TestManagerWriteVectorAndSearchFindsNearest(t *testing.T) {
	env := openTestEnv(t)
	m := NewManager(env)
	require.NoError(t, m.Configure(context.Background(), "default", config.EmbedderSettings{
		Source: "userProvided", Dimensions: 2,
	}))

	err := env.Update(func(tx *bbolt.Tx) error {
		if err := m.WriteVector(tx, "default", 1, []float32{1, 0}); err != nil {
			return err
		}
		return m.WriteVector(tx, "default", 2, []float32{0, 1})
	})
	require.NoError(t, err)

	err = env.View(func(tx *bbolt.Tx) error {
		scores, err := m.Search(tx, "default", []float32{1, 0}, 2)
		require.NoError(t, err)
		require.Contains(t, scores, uint32(1))
		assert.Greater(t, scores[1], scores[2])
		return nil
	})
	require.NoError(t, err)
}

func TestManagerDeleteDocumentRemovesFromIndex(t *testing.T) {
	env := openTestEnv(t)
	m := NewManager(env)
	require.NoError(t, m.Configure(context.Background(), "default", config.EmbedderSettings{
		Source: "userProvided", Dimensions: 2,
	}))

	err := env.Update(func(tx *bbolt.Tx) error {
		return m.WriteVector(tx, "default", 1, []float32{1, 0})
	})
	require.NoError(t, err)

	err = env.Update(func(tx *bbolt.Tx) error {
		return m.DeleteDocument(tx, "default", 1)
	})
	require.NoError(t, err)

	err = env.View(func(tx *bbolt.Tx) error {
		scores, err := m.Search(tx, "default", []float32{1, 0}, 2)
		require.NoError(t, err)
		assert.NotContains(t, scores, uint32(1))
		return nil
	})
	require.NoError(t, err)
}

func TestManagerWriteVectorRejectsWhenBucketAlreadyQuantized(t *testing.T) {
	env := openTestEnv(t)
	m := NewManager(env)
	require.NoError(t, m.Configure(context.Background(), "q", config.EmbedderSettings{
		Source: "userProvided", Dimensions: 2,
	}))

	// Mark the bucket quantized directly at the store layer, simulating an
	// embedder that was quantized in a prior configuration.
	err := env.Update(func(tx *bbolt.Tx) error {
		return env.Embedder("q").PutQuantized(tx, 99, []byte{0})
	})
	require.NoError(t, err)

	err = env.Update(func(tx *bbolt.Tx) error {
		return m.WriteVector(tx, "q", 1, []float32{1, 0})
	})
	assert.Error(t, err)
}
