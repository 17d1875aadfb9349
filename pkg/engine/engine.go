// Package engine is the public façade: it owns every open index
// environment, drives the scheduler that serializes mutations through C3,
// C5, and C6, and exposes a read-side Search call straight onto C4,
// mirroring the teacher's split between a write-side indexer interface and
// a read-side searcher interface (here unified behind one Engine, since
// this engine's read and write paths share one on-disk environment per
// index rather than separate backends).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/errors"
	"github.com/Aman-CERP/ftscore/internal/indexer"
	qpipeline "github.com/Aman-CERP/ftscore/internal/query/pipeline"
	"github.com/Aman-CERP/ftscore/internal/scheduler"
	"github.com/Aman-CERP/ftscore/internal/store"
	"github.com/Aman-CERP/ftscore/internal/vector"
)

// Options configures a new Engine.
type Options struct {
	// DataDir is the root directory under which every index gets its own
	// subdirectory (spec §6.4 "indexes/<uuid>/").
	DataDir string
	// MaxMapSizeBytes bounds each index environment's on-disk size.
	MaxMapSizeBytes int64
	Logger          *slog.Logger
}

// index bundles one index_uid's full stack: its store environment, the
// write-side pipeline, the read-side query engine, and its vector manager.
type index struct {
	uid        string
	primaryKey string
	env        *store.Environment
	pipeline   *indexer.Pipeline
	query      *qpipeline.Engine
	vectors    *vector.Manager
}

// Engine is the top-level entry point embedding applications use: create
// and delete indexes, enqueue document and settings mutations through the
// scheduler, search directly, and manage snapshots/dumps.
type Engine struct {
	opts Options
	log  *slog.Logger

	taskStore *scheduler.Store
	sched     *scheduler.Scheduler

	mu      sync.RWMutex
	indexes map[string]*index

	cancel context.CancelFunc
}

// Open starts an Engine rooted at opts.DataDir, opening every existing
// index directory found there and starting the scheduler loop.
func Open(opts Options) (*Engine, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("engine: DataDir is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	taskStore, err := scheduler.OpenStore(filepath.Join(opts.DataDir, "tasks.db"))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:      opts,
		log:       opts.Logger,
		taskStore: taskStore,
		indexes:   map[string]*index{},
	}
	e.sched = scheduler.New(taskStore, e, opts.Logger)

	if err := e.loadExistingIndexes(); err != nil {
		taskStore.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.sched.Run(ctx)

	return e, nil
}

func (e *Engine) indexesDir() string { return filepath.Join(e.opts.DataDir, "indexes") }

func (e *Engine) indexDir(uid string) string { return filepath.Join(e.indexesDir(), uid) }

// indexMeta persists the one piece of index identity that lives outside
// the bbolt environment itself: its primary key field name, read back on
// Open so a restarted engine's document tasks resolve external ids the
// same way the index was created with.
type indexMeta struct {
	PrimaryKey string `json:"primaryKey"`
}

func (e *Engine) writeIndexMeta(uid, primaryKey string) error {
	data, err := json.Marshal(indexMeta{PrimaryKey: primaryKey})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(e.indexDir(uid), "meta.json"), data, 0o644)
}

func (e *Engine) readIndexMeta(uid string) (indexMeta, error) {
	data, err := os.ReadFile(filepath.Join(e.indexDir(uid), "meta.json"))
	if os.IsNotExist(err) {
		return indexMeta{}, nil
	}
	if err != nil {
		return indexMeta{}, err
	}
	var meta indexMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return indexMeta{}, fmt.Errorf("parse index metadata for %q: %w", uid, err)
	}
	return meta, nil
}

func (e *Engine) loadExistingIndexes() error {
	entries, err := os.ReadDir(e.indexesDir())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list index directories: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := e.readIndexMeta(entry.Name())
		if err != nil {
			return err
		}
		if _, err := e.openIndex(entry.Name(), meta.PrimaryKey); err != nil {
			return fmt.Errorf("open existing index %q: %w", entry.Name(), err)
		}
	}
	return nil
}

func (e *Engine) openIndex(uid, primaryKey string) (*index, error) {
	env, err := store.Open(e.indexDir(uid), store.OpenOptions{MaxMapSizeBytes: e.opts.MaxMapSizeBytes})
	if err != nil {
		return nil, err
	}
	pl, err := indexer.NewPipeline(env, indexer.PipelineOptions{})
	if err != nil {
		env.Close()
		return nil, err
	}
	qe, err := qpipeline.NewEngine(env)
	if err != nil {
		env.Close()
		return nil, err
	}

	idx := &index{uid: uid, primaryKey: primaryKey, env: env, pipeline: pl, query: qe}
	if err := e.configureVectors(idx); err != nil {
		env.Close()
		return nil, err
	}

	e.mu.Lock()
	e.indexes[uid] = idx
	e.mu.Unlock()
	return idx, nil
}

// configureVectors (re)builds idx.vectors from the index's current
// settings, a no-op when no embedders are configured.
func (e *Engine) configureVectors(idx *index) error {
	settings := idx.env.Settings().Get()
	if len(settings.Embedders) == 0 {
		idx.vectors = nil
		idx.query.Vectors = nil
		return nil
	}
	mgr := vector.NewManager(idx.env)
	for name, cfg := range settings.Embedders {
		if err := mgr.Configure(context.Background(), name, cfg); err != nil {
			return fmt.Errorf("configure embedder %q for index %q: %w", name, idx.uid, err)
		}
	}
	idx.vectors = mgr
	idx.query.Vectors = mgr
	return nil
}

func (e *Engine) get(uid string) (*index, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.indexes[uid]
	if !ok {
		return nil, errors.New(errors.CodeIndexNotFound, fmt.Sprintf("index %q not found", uid), nil)
	}
	return idx, nil
}

// Close stops the scheduler loop and every open index environment.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, idx := range e.indexes {
		if idx.vectors != nil {
			idx.vectors.Close()
		}
		if err := idx.env.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.taskStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// --- scheduler.IndexManager ---

func (e *Engine) Pipeline(indexUID string) (*indexer.Pipeline, error) {
	idx, err := e.get(indexUID)
	if err != nil {
		return nil, err
	}
	return idx.pipeline, nil
}

func (e *Engine) Environment(indexUID string) (*store.Environment, error) {
	idx, err := e.get(indexUID)
	if err != nil {
		return nil, err
	}
	return idx.env, nil
}

func (e *Engine) Vectors(indexUID string) (*vector.Manager, error) {
	idx, err := e.get(indexUID)
	if err != nil {
		return nil, err
	}
	return idx.vectors, nil
}

func (e *Engine) CreateIndex(indexUID string, primaryKey string) error {
	if _, err := e.get(indexUID); err == nil {
		return errors.New(errors.CodeIndexAlreadyExist, fmt.Sprintf("index %q already exists", indexUID), nil)
	}
	if err := os.MkdirAll(e.indexDir(indexUID), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	if err := e.writeIndexMeta(indexUID, primaryKey); err != nil {
		return err
	}
	_, err := e.openIndex(indexUID, primaryKey)
	return err
}

func (e *Engine) DeleteIndex(indexUID string) error {
	e.mu.Lock()
	idx, ok := e.indexes[indexUID]
	if ok {
		delete(e.indexes, indexUID)
	}
	e.mu.Unlock()
	if !ok {
		return errors.New(errors.CodeIndexNotFound, fmt.Sprintf("index %q not found", indexUID), nil)
	}
	if idx.vectors != nil {
		idx.vectors.Close()
	}
	if err := idx.env.Close(); err != nil {
		return err
	}
	return os.RemoveAll(e.indexDir(indexUID))
}

func (e *Engine) SwapIndexes(a, b string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	idxA, okA := e.indexes[a]
	idxB, okB := e.indexes[b]
	if !okA || !okB {
		return errors.New(errors.CodeIndexNotFound, fmt.Sprintf("swap requires both %q and %q to exist", a, b), nil)
	}
	idxA.uid, idxB.uid = idxB.uid, idxA.uid
	e.indexes[a], e.indexes[b] = idxB, idxA
	return nil
}

func (e *Engine) Indexes() ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	uids := make([]string, 0, len(e.indexes))
	for uid := range e.indexes {
		uids = append(uids, uid)
	}
	return uids, nil
}

// --- public write-side API (enqueues through the scheduler) ---

// AddDocuments enqueues a document-addition task for indexUID, returning
// the enqueued task (spec §4.3.1, §4.5).
func (e *Engine) AddDocuments(indexUID string, docs []map[string]any, regenerate map[string]bool) (scheduler.Task, error) {
	idx, err := e.get(indexUID)
	if err != nil {
		return scheduler.Task{}, err
	}

	raw := make([]indexer.RawDocument, 0, len(docs))
	for _, d := range docs {
		rd := indexer.RawDocument{}
		for k, v := range d {
			b, err := json.Marshal(v)
			if err != nil {
				return scheduler.Task{}, fmt.Errorf("marshal field %q: %w", k, err)
			}
			rd[k] = b
		}
		raw = append(raw, rd)
	}

	payload, err := json.Marshal(documentAdditionPayload{
		PrimaryKey: idx.primaryKey,
		Documents:  raw,
		Regenerate: regenerate,
	})
	if err != nil {
		return scheduler.Task{}, err
	}

	return e.sched.Enqueue(scheduler.Task{IndexUID: indexUID, Kind: scheduler.KindDocumentAddition, Payload: payload})
}

// documentAdditionPayload mirrors the scheduler's own unexported document
// task payload shape; kept duplicated at this boundary rather than
// exported from internal/scheduler, so the façade's public API does not
// leak an internal package's wire type.
type documentAdditionPayload struct {
	PrimaryKey string                `json:"primaryKey"`
	Documents  []indexer.RawDocument `json:"documents"`
	Regenerate map[string]bool       `json:"regenerate,omitempty"`
}

// DeleteDocuments enqueues a document-deletion task for the given external
// ids.
func (e *Engine) DeleteDocuments(indexUID string, externalIDs []string) (scheduler.Task, error) {
	if _, err := e.get(indexUID); err != nil {
		return scheduler.Task{}, err
	}
	payload, err := json.Marshal(deletionPayload{ExternalIDs: externalIDs})
	if err != nil {
		return scheduler.Task{}, err
	}
	return e.sched.Enqueue(scheduler.Task{IndexUID: indexUID, Kind: scheduler.KindDocumentDeletion, Payload: payload})
}

type deletionPayload struct {
	ExternalIDs []string `json:"externalIds"`
}

// CreateIndexAsync enqueues an index-creation task instead of creating
// synchronously, matching the spec's task-based index lifecycle (§4.5).
func (e *Engine) CreateIndexAsync(indexUID, primaryKey string) (scheduler.Task, error) {
	return e.sched.Enqueue(scheduler.Task{
		IndexUID: indexUID,
		Kind:     scheduler.KindIndexCreation,
		Details:  map[string]any{"primaryKey": primaryKey},
	})
}

// DeleteIndexAsync enqueues an index-deletion task.
func (e *Engine) DeleteIndexAsync(indexUID string) (scheduler.Task, error) {
	return e.sched.Enqueue(scheduler.Task{IndexUID: indexUID, Kind: scheduler.KindIndexDeletion})
}

// UpdateSettings applies new settings to indexUID immediately (so the
// settings are visible to any document task enqueued right after, per
// spec §4.5's ordering requirement) and enqueues a SettingsUpdate task
// purely for the task log.
func (e *Engine) UpdateSettings(indexUID string, settings config.Settings) (scheduler.Task, error) {
	idx, err := e.get(indexUID)
	if err != nil {
		return scheduler.Task{}, err
	}

	if err := idx.env.Update(func(tx *bbolt.Tx) error { return idx.env.SaveSettings(tx, settings) }); err != nil {
		return scheduler.Task{}, err
	}
	if err := idx.env.InvalidateCaches(); err != nil {
		return scheduler.Task{}, err
	}
	if err := e.configureVectors(idx); err != nil {
		return scheduler.Task{}, err
	}

	return e.sched.Enqueue(scheduler.Task{IndexUID: indexUID, Kind: scheduler.KindSettingsUpdate})
}

// Search runs a direct C4 query against indexUID, bypassing the scheduler
// since search is read-only and does not mutate durable state.
func (e *Engine) Search(indexUID string, req qpipeline.Request) (*qpipeline.Response, error) {
	idx, err := e.get(indexUID)
	if err != nil {
		return nil, err
	}
	return idx.query.Search(req)
}

// GetTask returns one task's current record.
func (e *Engine) GetTask(uid uint32) (scheduler.Task, error) {
	return e.taskStore.Get(uid)
}

// CancelTask requests cancellation of a task.
func (e *Engine) CancelTask(uid uint32) error {
	return e.sched.Cancel(uid)
}

// CreateSnapshot enqueues a snapshot-creation task writing a hot-copy of
// indexUID's environment to dst.
func (e *Engine) CreateSnapshot(indexUID, dst string) (scheduler.Task, error) {
	return e.sched.Enqueue(scheduler.Task{
		IndexUID: indexUID,
		Kind:     scheduler.KindSnapshotCreation,
		Details:  map[string]any{"destination": dst},
	})
}

// CreateDump enqueues a dump-creation task archiving every index plus the
// task log to a new dumps/<uuid>.dump file under dir (spec §6.4).
func (e *Engine) CreateDump(dir string) (scheduler.Task, error) {
	dst := filepath.Join(dir, scheduler.NewDumpUID()+".dump")
	return e.sched.Enqueue(scheduler.Task{
		Kind:    scheduler.KindDumpCreation,
		Details: map[string]any{"destination": dst},
	})
}
