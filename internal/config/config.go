// Package config loads the engine-level configuration (data root, map-size
// defaults, indexer thread/memory budget, scheduler snapshot/dump schedule)
// the way the teacher loads its project config: YAML on disk, overridable by
// a handful of environment variables for the knobs that are commonly tuned
// per deployment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the engine-level (not per-index) configuration.
type Config struct {
	// DataRoot is the directory laid out per spec §6.4
	// (indexes/, tasks/, update_files/, snapshots/, dumps/, VERSION).
	DataRoot string `yaml:"data_root" json:"data_root"`

	// Indexes configures the per-index key-value environment.
	Indexes IndexesConfig `yaml:"indexes" json:"indexes"`

	// Indexer configures the C3 pipeline's parallelism and memory budget.
	Indexer IndexerConfig `yaml:"indexer" json:"indexer"`

	// Scheduler configures C5's batching and durability knobs.
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
}

// IndexesConfig configures C2 index-store environments.
type IndexesConfig struct {
	// MapSizeBytes is the fixed maximum map size for each index environment
	// (spec §3.1 "Owns a key-value environment with a fixed maximum map size").
	MapSizeBytes int64 `yaml:"map_size_bytes" json:"map_size_bytes"`

	// MaxOpenIndexes bounds concurrently-open environments; exceeding it
	// surfaces errors.CodeTooManyOpenIndexes.
	MaxOpenIndexes int `yaml:"max_open_indexes" json:"max_open_indexes"`

	// ReadTxnPoolSize bounds concurrent read transactions (spec §5 "Shared resources").
	ReadTxnPoolSize int `yaml:"read_txn_pool_size" json:"read_txn_pool_size"`
}

// IndexerConfig configures the C3 parallel extraction pipeline.
type IndexerConfig struct {
	// Workers is the size of the data-parallel extraction thread pool
	// (spec §5 "Indexer layer"). Zero means runtime.NumCPU().
	Workers int `yaml:"workers" json:"workers"`

	// CacheBudgetFraction bounds extraction-cache memory as a fraction of
	// MapSizeBytes (spec §5 "Memory: extraction caches are bounded... default
	// ~5% of the environment map size").
	CacheBudgetFraction float64 `yaml:"cache_budget_fraction" json:"cache_budget_fraction"`

	// GroupSize and MinLevelSize/MaxGroupSize describe the facet-tree fan-out
	// (spec §3.3 invariant 4, §4.3.2 "Facet levels"). They are loaded but not
	// read by the indexer, whose facet tree uses its own constants
	// (indexer.GroupSize = 4, MinLevelSize = 16, MaxGroupSize = 8).
	GroupSize    int `yaml:"group_size" json:"group_size"`
	MinLevelSize int `yaml:"min_level_size" json:"min_level_size"`
	MaxGroupSize int `yaml:"max_group_size" json:"max_group_size"`
}

// SchedulerConfig configures C5.
type SchedulerConfig struct {
	// TaskRetentionDays bounds how long terminal tasks are GC-collectable
	// (spec §3.4 "Lifecycles").
	TaskRetentionDays int `yaml:"task_retention_days" json:"task_retention_days"`

	// SnapshotDir and DumpDir mirror spec §6.4's on-disk layout; overridable
	// so deployments can place them on a different volume.
	SnapshotDir string `yaml:"snapshot_dir" json:"snapshot_dir"`
	DumpDir     string `yaml:"dump_dir" json:"dump_dir"`
}

// Default returns sensible engine defaults.
func Default() Config {
	return Config{
		DataRoot: DefaultDataRoot(),
		Indexes: IndexesConfig{
			MapSizeBytes:    1 << 34, // 16 GiB, resized lazily by most mmap KV stores
			MaxOpenIndexes:  64,
			ReadTxnPoolSize: 32,
		},
		Indexer: IndexerConfig{
			Workers:              0,
			CacheBudgetFraction:  0.05,
			GroupSize:            4,
			MinLevelSize:         5,
			MaxGroupSize:         8,
		},
		Scheduler: SchedulerConfig{
			TaskRetentionDays: 90,
		},
	}
}

// DefaultDataRoot returns ~/.ftscore/data, mirroring the teacher's
// ~/.amanmcp convention for per-user application state.
func DefaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ftscore", "data")
	}
	return filepath.Join(home, ".ftscore", "data")
}

// Load reads YAML config from path, applies defaults for unset fields, then
// applies environment overrides (highest priority, matching the teacher's
// three-tier precedence: defaults < file < env).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return applyEnv(cfg), nil
			}
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	if v := os.Getenv("FTSCORE_DATA_ROOT"); v != "" {
		cfg.DataRoot = v
	}
	if v := os.Getenv("FTSCORE_MAP_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexes.MapSizeBytes = n
		}
	}
	if v := os.Getenv("FTSCORE_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	return cfg
}

// Save writes cfg as YAML to path atomically (temp file + rename), the way
// the teacher persists its config backups.
func Save(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
