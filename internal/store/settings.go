package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/config"
)

// SettingsCache holds the index's current settings snapshot in memory,
// invalidated on write commit whenever settings change (spec §4.2).
type SettingsCache struct {
	mu       sync.RWMutex
	settings config.Settings
}

// Get returns a copy of the current settings snapshot.
func (c *SettingsCache) Get() config.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

func loadSettingsCache(e *Environment) (*SettingsCache, error) {
	var data []byte
	err := e.db.View(func(tx *bbolt.Tx) error {
		data = tx.Bucket([]byte(tableMain)).Get([]byte(mainKeySettings))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s := config.DefaultSettings()
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return &SettingsCache{settings: s}, nil
}

// SaveSettings persists new settings inside tx; the caller must invalidate
// the in-memory cache (Environment.InvalidateCaches) after commit.
func (e *Environment) SaveSettings(tx *bbolt.Tx, s config.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return tx.Bucket([]byte(tableMain)).Put([]byte(mainKeySettings), data)
}
