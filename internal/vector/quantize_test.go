package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/store"
)

func openTestEnv(t *testing.T) *store.Environment {
	t.Helper()
	env, err := store.Open(t.TempDir()+"/idx", store.OpenOptions{ReadTxnPoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestQuantizedIndexSearchRanksByHammingDistance(t *testing.T) {
	env := openTestEnv(t)
	v := env.Embedder("q")

	err := env.Update(func(tx *bbolt.Tx) error {
		if err := v.PutQuantized(tx, 1, []byte{0b11111111}); err != nil {
			return err
		}
		if err := v.PutQuantized(tx, 2, []byte{0b00000000}); err != nil {
			return err
		}
		return v.PutQuantized(tx, 3, []byte{0b11110000})
	})
	require.NoError(t, err)

	q := NewQuantizedIndex(8)
	err = env.View(func(tx *bbolt.Tx) error {
		results, err := q.Search(tx, v, []float32{1, 1, 1, 1, 1, 1, 1, 1}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, uint32(1), results[0].Docid)
		assert.Equal(t, uint32(3), results[1].Docid)
		assert.Equal(t, uint32(2), results[2].Docid)
		return nil
	})
	require.NoError(t, err)
}

func TestQuantizeDisableErrorUsesCannotDisableCode(t *testing.T) {
	err := QuantizeDisableError("default")
	assert.Error(t, err)
}
