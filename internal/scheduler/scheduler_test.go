package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ftscore/internal/indexer"
	"github.com/Aman-CERP/ftscore/internal/store"
	"github.com/Aman-CERP/ftscore/internal/vector"
)

// fakeIndexManager is a minimal in-test double for IndexManager, backed by
// a single real store.Environment so executeDocumentBatch exercises the
// real indexer.Pipeline end to end.
type fakeIndexManager struct {
	env      *store.Environment
	pipeline *indexer.Pipeline
	deleted  []string
	swapped  [][2]string
	created  []string
}

func newFakeIndexManager(t *testing.T) *fakeIndexManager {
	t.Helper()
	env, err := store.Open(t.TempDir(), store.OpenOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	p, err := indexer.NewPipeline(env, indexer.PipelineOptions{})
	require.NoError(t, err)

	return &fakeIndexManager{env: env, pipeline: p}
}

func (f *fakeIndexManager) Pipeline(string) (*indexer.Pipeline, error)        { return f.pipeline, nil }
func (f *fakeIndexManager) Environment(string) (*store.Environment, error)   { return f.env, nil }
func (f *fakeIndexManager) Vectors(string) (*vector.Manager, error)          { return nil, nil }
func (f *fakeIndexManager) CreateIndex(uid, primaryKey string) error         { f.created = append(f.created, uid); return nil }
func (f *fakeIndexManager) DeleteIndex(uid string) error                     { f.deleted = append(f.deleted, uid); return nil }
func (f *fakeIndexManager) SwapIndexes(a, b string) error                    { f.swapped = append(f.swapped, [2]string{a, b}); return nil }
func (f *fakeIndexManager) Indexes() ([]string, error)                       { return []string{"movies"}, nil }

func documentPayload(t *testing.T, primaryKey string, docs ...map[string]any) json.RawMessage {
	t.Helper()
	raw := make([]indexer.RawDocument, 0, len(docs))
	for _, d := range docs {
		rd := indexer.RawDocument{}
		for k, v := range d {
			b, err := json.Marshal(v)
			require.NoError(t, err)
			rd[k] = b
		}
		raw = append(raw, rd)
	}
	payload := documentTaskPayload{PrimaryKey: primaryKey, Documents: raw}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return data
}

func TestSchedulerRunsDocumentAdditionBatchToSuccess(t *testing.T) {
	idx := newFakeIndexManager(t)
	taskStore := openTestStore(t)
	sched := New(taskStore, idx, nil)

	task, err := sched.Enqueue(Task{
		IndexUID: "movies",
		Kind:     KindDocumentAddition,
		Payload:  documentPayload(t, "id", map[string]any{"id": "1", "title": "Arrival"}),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go sched.Run(ctx)

	require.Eventually(t, func() bool {
		got, err := taskStore.Get(task.UID)
		return err == nil && (got.Status == StatusSucceeded || got.Status == StatusFailed)
	}, 1*time.Second, 10*time.Millisecond)

	got, err := taskStore.Get(task.UID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.NotNil(t, got.BatchUID)
}

func TestSchedulerCancelBeforeStartMarksCanceledImmediately(t *testing.T) {
	idx := newFakeIndexManager(t)
	taskStore := openTestStore(t)
	sched := New(taskStore, idx, nil)

	task, err := sched.Enqueue(Task{IndexUID: "movies", Kind: KindDocumentAddition})
	require.NoError(t, err)

	require.NoError(t, sched.Cancel(task.UID))

	got, err := taskStore.Get(task.UID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)
}

func TestSchedulerIndexDeletionDispatchesToIndexManager(t *testing.T) {
	idx := newFakeIndexManager(t)
	taskStore := openTestStore(t)
	sched := New(taskStore, idx, nil)

	task, err := sched.Enqueue(Task{IndexUID: "movies", Kind: KindIndexDeletion})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go sched.Run(ctx)

	require.Eventually(t, func() bool {
		got, err := taskStore.Get(task.UID)
		return err == nil && got.Status == StatusSucceeded
	}, 1*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"movies"}, idx.deleted)
}

func TestSnapshotCopiesEnvironmentFile(t *testing.T) {
	idx := newFakeIndexManager(t)
	taskStore := openTestStore(t)
	sched := New(taskStore, idx, nil)

	dst := t.TempDir()
	err := sched.snapshot("movies", dst)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dst, "data.mdb"))
	require.NoError(t, err)
}

func TestDumpWritesTarGzipArchive(t *testing.T) {
	idx := newFakeIndexManager(t)
	taskStore := openTestStore(t)
	sched := New(taskStore, idx, nil)

	_, err := taskStore.Enqueue(Task{IndexUID: "movies", Kind: KindDocumentAddition})
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "dump.dump")
	require.NoError(t, sched.dump(dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
