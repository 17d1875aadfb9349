package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHasSaneBudgets(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(1<<34), cfg.Indexes.MapSizeBytes)
	assert.Equal(t, 64, cfg.Indexes.MaxOpenIndexes)
	assert.Equal(t, 90, cfg.Scheduler.TaskRetentionDays)
	assert.NotEmpty(t, cfg.DataRoot)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Indexes.MapSizeBytes, cfg.Indexes.MapSizeBytes)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte("data_root: /srv/ftscore\nindexer:\n  workers: 8\n"), 0o644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/ftscore", cfg.DataRoot)
	assert.Equal(t, 8, cfg.Indexer.Workers)
	// Unset fields keep their defaults.
	assert.Equal(t, Default().Indexes.MaxOpenIndexes, cfg.Indexes.MaxOpenIndexes)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte("data_root: /srv/ftscore\n"), 0o644)
	require.NoError(t, err)

	t.Setenv("FTSCORE_DATA_ROOT", "/env/ftscore")
	t.Setenv("FTSCORE_INDEXER_WORKERS", "16")
	t.Setenv("FTSCORE_MAP_SIZE_BYTES", "1073741824")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/env/ftscore", cfg.DataRoot)
	assert.Equal(t, 16, cfg.Indexer.Workers)
	assert.Equal(t, int64(1073741824), cfg.Indexes.MapSizeBytes)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := Default()
	cfg.DataRoot = "/custom/root"
	cfg.Indexer.Workers = 4

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/custom/root", loaded.DataRoot)
	assert.Equal(t, 4, loaded.Indexer.Workers)
}

func TestDefaultSettingsHasRankingCascade(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, []string{"words", "typo", "proximity", "attribute", "exactness"}, s.RankingRules)
	assert.True(t, s.TypoTolerance.Enabled)
	assert.Equal(t, 5, s.TypoTolerance.MinWordSizeForTypos.OneTypo)
	assert.Equal(t, 9, s.TypoTolerance.MinWordSizeForTypos.TwoTypos)
}
