package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func openTestEnv(t *testing.T) *Environment {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "idx")
	env, err := Open(dir, OpenOptions{ReadTxnPoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestOpenCreatesAllTables(t *testing.T) {
	env := openTestEnv(t)
	err := env.View(func(tx *bbolt.Tx) error {
		for _, name := range tableNames {
			if tx.Bucket([]byte(name)) == nil {
				t.Fatalf("missing bucket %s", name)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestOpenStampsVersionOnFirstOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	env, err := Open(dir, OpenOptions{})
	require.NoError(t, err)
	defer env.Close()

	err = env.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(tableMain)).Get([]byte(mainKeyVersion))
		assert.Equal(t, EngineVersion, string(v))
		return nil
	})
	require.NoError(t, err)
}

func TestOpenSecondTimeHoldsLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	env, err := Open(dir, OpenOptions{})
	require.NoError(t, err)
	defer env.Close()

	_, err = Open(dir, OpenOptions{BoltTimeout: 1})
	assert.Error(t, err)
}

func TestMapSizeExceededRejectsWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	env, err := Open(dir, OpenOptions{MaxMapSizeBytes: 1})
	require.NoError(t, err)
	defer env.Close()

	err = env.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(tableMain)).Put([]byte("k"), make([]byte, 4096))
	})
	assert.Error(t, err)
}
