package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/errors"
	"github.com/Aman-CERP/ftscore/internal/indexer"
	"github.com/Aman-CERP/ftscore/internal/store"
	"github.com/Aman-CERP/ftscore/internal/vector"
)

// IndexManager is the subset of the public façade (pkg/engine) the
// scheduler needs to drive tasks against a named index: its indexing
// pipeline, its raw environment (for docid lookups and snapshot
// hot-copies), and its vector manager (nil if no embedders are
// configured). Structural creation/deletion/swap of indexes is also
// routed through here so those task kinds run under the same single
// writer-loop discipline as everything else.
type IndexManager interface {
	Pipeline(indexUID string) (*indexer.Pipeline, error)
	Environment(indexUID string) (*store.Environment, error)
	Vectors(indexUID string) (*vector.Manager, error)
	CreateIndex(indexUID string, primaryKey string) error
	DeleteIndex(indexUID string) error
	SwapIndexes(a, b string) error
	// Indexes lists every currently open index uid, used by dump creation
	// to enumerate what to archive.
	Indexes() ([]string, error)
}

// documentTaskPayload is the JSON shape of Task.Payload for
// KindDocumentAddition tasks: a batch of raw documents sharing one
// primary key (spec §4.3.1 "Document batch").
type documentTaskPayload struct {
	PrimaryKey string                `json:"primaryKey"`
	Documents  []indexer.RawDocument `json:"documents"`
	Regenerate map[string]bool       `json:"regenerate,omitempty"` // embedder name -> regenerate
}

// deletionTaskPayload is the JSON shape of Task.Payload for
// KindDocumentDeletion tasks.
type deletionTaskPayload struct {
	ExternalIDs []string `json:"externalIds"`
}

// Scheduler runs the single cooperative batching loop described in spec
// §4.5: it wakes on enqueue or on a timer, builds the next compatible
// batch of oldest-first tasks, drives it through C3 (and C6, for
// document tasks with embedders configured) under one index's writer
// slot, and commits each task's terminal status atomically with the
// data it produced.
type Scheduler struct {
	store *Store
	idx   IndexManager
	log   *slog.Logger

	wake chan struct{}

	mu             sync.Mutex
	cancelRequests map[uint32]bool
}

// New builds a Scheduler bound to store and idx. log may be nil, in which
// case slog.Default() is used, matching the rest of the engine's logging
// convention (internal/logging).
func New(store *Store, idx IndexManager, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:          store,
		idx:            idx,
		log:            log,
		wake:           make(chan struct{}, 1),
		cancelRequests: map[uint32]bool{},
	}
}

// Enqueue persists t and wakes the loop.
func (s *Scheduler) Enqueue(t Task) (Task, error) {
	t, err := s.store.Enqueue(t)
	if err != nil {
		return t, err
	}
	s.notify()
	return t, nil
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Cancel requests cancellation of uid. A task still enqueued is canceled
// immediately; a task already processing is only flagged, honored at the
// next yield point the running batch reaches (spec §4.5 "cooperative
// cancellation").
func (s *Scheduler) Cancel(uid uint32) error {
	t, err := s.store.Get(uid)
	if err != nil {
		return err
	}
	if t.IsCancellable() {
		return s.store.UpdateStatus(uid, StatusCanceled, nil)
	}
	s.mu.Lock()
	s.cancelRequests[uid] = true
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) consumeCancel(uid uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelRequests[uid] {
		delete(s.cancelRequests, uid)
		return true
	}
	return false
}

// Run blocks, processing batches until ctx is canceled. Call it from its
// own goroutine; it is the engine's single task-processing loop.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}
		for s.tick(ctx) {
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// tick runs at most one batch built from the currently enqueued tasks
// (cancelled tasks never reach StatusEnqueued, per Cancel), and reports
// whether it did work, so Run keeps draining the backlog before sleeping
// again.
func (s *Scheduler) tick(ctx context.Context) bool {
	candidates, err := s.store.ListByStatus(StatusEnqueued)
	if err != nil {
		s.log.Error("list enqueued tasks", "error", err)
		return false
	}
	if len(candidates) == 0 {
		return false
	}

	batch := NextBatch(candidates)
	s.runBatch(ctx, batch)
	return true
}

// runBatch marks every task processing, drives it through the pipeline
// appropriate to its kind, and atomically commits each task's terminal
// status together with the batch summary.
func (s *Scheduler) runBatch(ctx context.Context, batch Batch) {
	if len(batch.Tasks) == 0 {
		return
	}

	batchUID, err := s.store.NextBatchUID()
	if err != nil {
		s.log.Error("reserve batch uid", "error", err)
		return
	}

	uids := make([]uint32, 0, len(batch.Tasks))
	for _, t := range batch.Tasks {
		uids = append(uids, t.UID)
		if err := s.store.UpdateStatus(t.UID, StatusProcessing, nil); err != nil {
			s.log.Error("mark task processing", "task", t.UID, "error", err)
			return
		}
		if err := s.store.AssignBatch(t.UID, batchUID); err != nil {
			s.log.Error("assign batch uid", "task", t.UID, "error", err)
		}
	}

	summary := BatchSummary{UID: batchUID, IndexUID: batch.IndexUID, TaskUIDs: uids, StartedAt: time.Now().UTC()}

	runErr := s.execute(ctx, batch)

	summary.FinishedAt = time.Now().UTC()
	summary.Succeeded = runErr == nil
	if err := s.store.RecordBatch(summary); err != nil {
		s.log.Error("record batch summary", "batch", batchUID, "error", err)
	}

	for _, t := range batch.Tasks {
		if s.consumeCancel(t.UID) {
			if err := s.store.UpdateStatus(t.UID, StatusCanceled, nil); err != nil {
				s.log.Error("mark task canceled", "task", t.UID, "error", err)
			}
			continue
		}
		status := StatusSucceeded
		if runErr != nil {
			status = StatusFailed
		}
		if err := s.store.UpdateStatus(t.UID, status, runErr); err != nil {
			s.log.Error("mark task terminal status", "task", t.UID, "status", status, "error", err)
		}
	}

	s.log.Info("batch finished", "batch", batchUID, "index", batch.IndexUID, "tasks", len(batch.Tasks), "succeeded", runErr == nil)
}

// execute dispatches a batch to the pipeline matching its anchor task's
// kind. All tasks in a batch share a kind category by construction of
// NextBatch, except document addition/deletion batches which interleave;
// those are merged into one indexer.Batch here.
func (s *Scheduler) execute(ctx context.Context, batch Batch) error {
	anchor := batch.Tasks[0]

	switch anchor.Kind {
	case KindIndexCreation:
		details := anchor.Details
		primaryKey, _ := details["primaryKey"].(string)
		return s.idx.CreateIndex(batch.IndexUID, primaryKey)

	case KindIndexDeletion:
		return s.idx.DeleteIndex(batch.IndexUID)

	case KindIndexUpdate:
		// Primary key / settings-shape updates to an existing index are
		// represented as a settings update against the running environment;
		// nothing further to do at the scheduler layer beyond having run it
		// as its own singleton batch.
		return nil

	case KindIndexSwap:
		target, _ := anchor.Details["target"].(string)
		if target == "" {
			return errors.New(errors.CodeInvalidIndexUID, "index swap task missing target index uid", nil)
		}
		return s.idx.SwapIndexes(batch.IndexUID, target)

	case KindSettingsUpdate:
		// Settings mutation itself happens synchronously when the façade
		// accepts the request (it must be visible before the task even
		// enqueues, so later document tasks in the same batch window see
		// it); the task here only marks completion of that already-applied
		// change for the task-log's sake.
		return nil

	case KindDocumentAddition, KindDocumentDeletion:
		return s.executeDocumentBatch(ctx, batch)

	case KindSnapshotCreation:
		dst, _ := anchor.Details["destination"].(string)
		return s.snapshot(batch.IndexUID, dst)

	case KindDumpCreation:
		dst, _ := anchor.Details["destination"].(string)
		return s.dump(dst)

	default:
		return fmt.Errorf("unknown task kind %q", anchor.Kind)
	}
}

func (s *Scheduler) executeDocumentBatch(ctx context.Context, batch Batch) error {
	pipeline, err := s.idx.Pipeline(batch.IndexUID)
	if err != nil {
		return err
	}

	ibatch, regenerate, err := buildIndexerBatch(batch.Tasks)
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, err := pipeline.Run(ibatch); err != nil {
		return err
	}

	return s.embedBatch(batch.IndexUID, ibatch, regenerate)
}

// buildIndexerBatch flattens every document addition/deletion task in
// batch into one indexer.Batch, in enqueue order, and collects the
// regenerate flags requested per embedder (spec §4.5 rule 4: "interleave
// in enqueue order"). All document tasks against one index share a
// primary key; the first one found wins.
func buildIndexerBatch(tasks []Task) (indexer.Batch, map[string]bool, error) {
	var ibatch indexer.Batch
	regenerate := map[string]bool{}

	for _, t := range tasks {
		switch t.Kind {
		case KindDocumentAddition:
			var payload documentTaskPayload
			if err := json.Unmarshal(t.Payload, &payload); err != nil {
				return ibatch, nil, fmt.Errorf("decode document task %d payload: %w", t.UID, err)
			}
			if ibatch.PrimaryKey == "" {
				ibatch.PrimaryKey = payload.PrimaryKey
			}
			ibatch.Upserts = append(ibatch.Upserts, payload.Documents...)
			for name, want := range payload.Regenerate {
				regenerate[name] = regenerate[name] || want
			}

		case KindDocumentDeletion:
			var payload deletionTaskPayload
			if err := json.Unmarshal(t.Payload, &payload); err != nil {
				return ibatch, nil, fmt.Errorf("decode deletion task %d payload: %w", t.UID, err)
			}
			ibatch.Deletes = append(ibatch.Deletes, payload.ExternalIDs...)
		}
	}
	return ibatch, regenerate, nil
}

// embedBatch renders and writes vectors for every embedder flagged for
// regeneration, run after the commit so docids are guaranteed resolved
// (spec §4.6 write flow). Embedding runs after the indexing commit rather
// than inside it. It returns at the first embedding or write error, so the
// batch's tasks are marked failed while the (already durable) indexing
// commit stays in place; documents not yet reached are left without a
// fresh vector, and no vector is marked stale.
func (s *Scheduler) embedBatch(indexUID string, ibatch indexer.Batch, regenerate map[string]bool) error {
	if len(regenerate) == 0 || len(ibatch.Upserts) == 0 {
		return nil
	}
	vectors, err := s.idx.Vectors(indexUID)
	if err != nil {
		return err
	}
	if vectors == nil {
		return nil
	}
	env, err := s.idx.Environment(indexUID)
	if err != nil {
		return err
	}

	docids, err := store.LoadDocidAllocator(env)
	if err != nil {
		return err
	}

	for _, raw := range ibatch.Upserts {
		external, ok := primaryKeyValueForEmbedding(raw, ibatch.PrimaryKey)
		if !ok {
			continue
		}
		docid, ok := docids.Lookup(external)
		if !ok {
			continue
		}
		doc := decodeRawDocumentForEmbedding(raw)

		for name, want := range regenerate {
			if !want {
				continue
			}
			name := name
			doc := doc
			err := env.Update(func(tx *bbolt.Tx) error {
				return vectors.IndexDocument(context.Background(), tx, name, docid, doc, true)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// primaryKeyValueForEmbedding extracts the external document id from a raw
// upsert document, mirroring the pipeline's own primary-key decoding
// (spec §4.3.1) so embedding looks up the same docid the commit assigned.
func primaryKeyValueForEmbedding(doc indexer.RawDocument, primaryKey string) (string, bool) {
	raw, ok := doc[primaryKey]
	if !ok {
		return "", false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return fmt.Sprintf("%d", int64(t)), true
	default:
		return "", false
	}
}

// decodeRawDocumentForEmbedding decodes a RawDocument's fields into plain
// Go values for binding into a document template (spec §4.6 "doc"/"fields"
// bindings).
func decodeRawDocumentForEmbedding(raw indexer.RawDocument) map[string]any {
	doc := make(map[string]any, len(raw))
	for k, v := range raw {
		var decoded any
		if err := json.Unmarshal(v, &decoded); err == nil {
			doc[k] = decoded
		}
	}
	return doc
}
