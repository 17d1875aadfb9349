// Package store implements C2, the index store: the key-value environment,
// typed table accessors, the fields-ids map, settings cache, and the
// external<->internal docid bimap. Every higher-level read or write in the
// engine goes through this package.
//
// The environment is a single bbolt database per index (one file,
// mmap-backed, single writer / many readers via bbolt's own MVCC), matching
// the teacher's BoltDB storage package: one file per logical store, buckets
// for each table, ACID transactions, automatic bucket creation on open.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/errors"
)

// EngineVersion is compared against the version persisted in main on open
// (spec invariant 7: "version monotonicity").
const EngineVersion = "1.0.0"

// DataFileName is the bbolt database file name inside an index directory
// (spec §6.4 "indexes/<uuid>/data.mdb").
const DataFileName = "data.mdb"

// Environment owns one index's key-value store: the bbolt database, a flock
// guard enforcing the single-writer invariant across process restarts, and
// a bounded pool of concurrent read transactions.
type Environment struct {
	mu sync.RWMutex

	db   *bbolt.DB
	lock *flock.Flock
	path string

	maxMapSizeBytes int64
	readSem         chan struct{}

	fields   *FieldsMap
	settings *SettingsCache

	closed bool
}

// OpenOptions configures Environment.Open.
type OpenOptions struct {
	// MaxMapSizeBytes is the configured fixed maximum size for this
	// environment (spec §3.1 "fixed maximum map size"). bbolt itself grows
	// its mmap dynamically; this engine enforces the budget explicitly by
	// checking file size after each write commit.
	MaxMapSizeBytes int64
	// ReadTxnPoolSize bounds concurrent read transactions (spec §5 "Shared
	// resources").
	ReadTxnPoolSize int
	// BoltTimeout bounds how long bbolt.Open waits for its own advisory
	// file lock before failing.
	BoltTimeout time.Duration
}

// Open creates or opens the index environment rooted at dir (spec §6.4
// "indexes/<uuid>/"). It acquires a process-wide flock guard before
// touching bbolt so two engine processes can never both claim the writer
// slot for the same index directory, then verifies version compatibility
// and ensures every required table/bucket exists.
func Open(dir string, opts OpenOptions) (*Environment, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir %s: %w", dir, err)
	}

	lockPath := filepath.Join(dir, ".lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire environment lock: %w", err)
	}
	if !locked {
		return nil, errors.New(errors.CodeInternal, "index environment already locked by another process", nil)
	}

	timeout := opts.BoltTimeout
	if timeout == 0 {
		timeout = 1 * time.Second
	}

	dbPath := filepath.Join(dir, DataFileName)
	db, err := bbolt.Open(dbPath, 0o644, &bbolt.Options{Timeout: timeout})
	if err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("open bbolt environment %s: %w", dbPath, err)
	}

	poolSize := opts.ReadTxnPoolSize
	if poolSize <= 0 {
		poolSize = 32
	}

	env := &Environment{
		db:              db,
		lock:            fl,
		path:            dir,
		maxMapSizeBytes: opts.MaxMapSizeBytes,
		readSem:         make(chan struct{}, poolSize),
	}

	if err := env.ensureTables(); err != nil {
		_ = env.Close()
		return nil, err
	}

	if err := env.checkVersion(); err != nil {
		_ = env.Close()
		return nil, err
	}

	env.fields, err = loadFieldsMap(env)
	if err != nil {
		_ = env.Close()
		return nil, err
	}

	env.settings, err = loadSettingsCache(env)
	if err != nil {
		_ = env.Close()
		return nil, err
	}

	return env, nil
}

// ensureTables creates every bucket named in tableNames if absent (spec
// §4.2 "ensures all required tables exist").
func (e *Environment) ensureTables() error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range tableNames {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (e *Environment) checkVersion() error {
	var stored string
	err := e.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tableMain))
		v := b.Get([]byte(mainKeyVersion))
		if v != nil {
			stored = string(v)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if stored == "" {
		return e.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket([]byte(tableMain)).Put([]byte(mainKeyVersion), []byte(EngineVersion))
		})
	}

	if stored > EngineVersion {
		return errors.New(errors.CodeVersionMismatch,
			fmt.Sprintf("index was created by a newer engine version %s", stored), nil)
	}
	return nil
}

// View runs fn inside a bounded, read-only transaction.
func (e *Environment) View(fn func(*bbolt.Tx) error) error {
	e.readSem <- struct{}{}
	defer func() { <-e.readSem }()
	return e.db.View(fn)
}

// Update runs fn inside the single write transaction slot, then enforces
// the configured map-size budget.
func (e *Environment) Update(fn func(*bbolt.Tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.db.Update(fn); err != nil {
		return err
	}
	return e.checkMapSize()
}

func (e *Environment) checkMapSize() error {
	if e.maxMapSizeBytes <= 0 {
		return nil
	}
	info, err := os.Stat(filepath.Join(e.path, DataFileName))
	if err != nil {
		return nil
	}
	if info.Size() > e.maxMapSizeBytes {
		return errors.New(errors.CodeMapSizeExceeded,
			fmt.Sprintf("index environment exceeded configured map size of %d bytes", e.maxMapSizeBytes), nil)
	}
	return nil
}

// Fields returns the cached fields-ids map.
func (e *Environment) Fields() *FieldsMap { return e.fields }

// Settings returns the cached settings snapshot.
func (e *Environment) Settings() *SettingsCache { return e.settings }

// InvalidateCaches reloads the fields map and settings snapshot from disk,
// called on write commit when settings or fields changed (spec §4.2).
func (e *Environment) InvalidateCaches() error {
	fields, err := loadFieldsMap(e)
	if err != nil {
		return err
	}
	settings, err := loadSettingsCache(e)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.fields = fields
	e.settings = settings
	e.mu.Unlock()
	return nil
}

// Close releases the bbolt database and the flock guard.
func (e *Environment) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var dbErr error
	if e.db != nil {
		dbErr = e.db.Close()
	}
	if e.lock != nil {
		_ = e.lock.Unlock()
	}
	return dbErr
}

// Path returns the environment's directory.
func (e *Environment) Path() string { return e.path }

// CopyTo hot-copies the environment's backing file to dst under a read
// transaction, bbolt's native snapshot primitive (spec §6's snapshot
// creation: "copy environment files under a read transaction via the KV
// store's hot-copy primitive"). Readers and the single writer are
// unaffected; the copy reflects whatever was last committed when the read
// transaction opened.
func (e *Environment) CopyTo(dst string) error {
	return e.db.View(func(tx *bbolt.Tx) error {
		return tx.CopyFile(dst, 0o600)
	})
}
