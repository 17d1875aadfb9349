package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/config"
)

func TestLoadSettingsCacheDefaultsOnNewIndex(t *testing.T) {
	env := openTestEnv(t)
	s := env.Settings().Get()
	assert.Equal(t, config.DefaultSettings().RankingRules, s.RankingRules)
}

func TestSaveSettingsThenInvalidateReflectsChange(t *testing.T) {
	env := openTestEnv(t)

	updated := config.DefaultSettings()
	updated.SearchableAttributes = []string{"title", "body"}
	updated.DistinctAttribute = "sku"

	err := env.Update(func(tx *bbolt.Tx) error {
		return env.SaveSettings(tx, updated)
	})
	require.NoError(t, err)

	require.NoError(t, env.InvalidateCaches())

	got := env.Settings().Get()
	assert.Equal(t, []string{"title", "body"}, got.SearchableAttributes)
	assert.Equal(t, "sku", got.DistinctAttribute)
}
