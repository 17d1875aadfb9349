package scheduler

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ftscore/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnqueueAssignsSequentialUIDs(t *testing.T) {
	s := openTestStore(t)

	t1, err := s.Enqueue(Task{IndexUID: "movies", Kind: KindDocumentAddition})
	require.NoError(t, err)
	t2, err := s.Enqueue(Task{IndexUID: "movies", Kind: KindDocumentAddition})
	require.NoError(t, err)

	assert.Equal(t, uint32(0), t1.UID)
	assert.Equal(t, uint32(1), t2.UID)
	assert.Equal(t, StatusEnqueued, t1.Status)
}

func TestGetUnknownTaskReturnsTaskNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(42)
	require.Error(t, err)
	assert.Equal(t, errors.CodeTaskNotFound, errors.Code(err))
}

func TestUpdateStatusStampsTimestamps(t *testing.T) {
	s := openTestStore(t)
	task, err := s.Enqueue(Task{IndexUID: "movies", Kind: KindDocumentAddition})
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(task.UID, StatusProcessing, nil))
	got, err := s.Get(task.UID)
	require.NoError(t, err)
	assert.NotNil(t, got.StartedAt)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, s.UpdateStatus(task.UID, StatusSucceeded, nil))
	got, err = s.Get(task.UID)
	require.NoError(t, err)
	assert.NotNil(t, got.FinishedAt)
	assert.Equal(t, StatusSucceeded, got.Status)
}

func TestUpdateStatusRecordsEngineError(t *testing.T) {
	s := openTestStore(t)
	task, err := s.Enqueue(Task{IndexUID: "movies", Kind: KindDocumentAddition})
	require.NoError(t, err)

	taskErr := errors.New(errors.CodeExtractionFailed, "boom", nil)
	require.NoError(t, s.UpdateStatus(task.UID, StatusFailed, taskErr))

	got, err := s.Get(task.UID)
	require.NoError(t, err)
	require.NotNil(t, got.Error)
	assert.Equal(t, errors.CodeExtractionFailed, got.Error.Code)
}

func TestListByStatusAndByIndex(t *testing.T) {
	s := openTestStore(t)
	a, err := s.Enqueue(Task{IndexUID: "movies", Kind: KindDocumentAddition})
	require.NoError(t, err)
	b, err := s.Enqueue(Task{IndexUID: "books", Kind: KindDocumentAddition})
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(a.UID, StatusSucceeded, nil))

	enqueued, err := s.ListByStatus(StatusEnqueued)
	require.NoError(t, err)
	require.Len(t, enqueued, 1)
	assert.Equal(t, b.UID, enqueued[0].UID)

	byIndex, err := s.ListByIndex("movies")
	require.NoError(t, err)
	require.Len(t, byIndex, 1)
	assert.Equal(t, a.UID, byIndex[0].UID)
}

func TestIsCancellableOnlyWhenEnqueued(t *testing.T) {
	s := openTestStore(t)
	task, err := s.Enqueue(Task{IndexUID: "movies", Kind: KindDocumentAddition})
	require.NoError(t, err)
	assert.True(t, task.IsCancellable())

	require.NoError(t, s.UpdateStatus(task.UID, StatusProcessing, nil))
	got, err := s.Get(task.UID)
	require.NoError(t, err)
	assert.False(t, got.IsCancellable())
}

func TestRecordBatchAndNextBatchUID(t *testing.T) {
	s := openTestStore(t)
	uid, err := s.NextBatchUID()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), uid)

	next, err := s.NextBatchUID()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), next)

	require.NoError(t, s.RecordBatch(BatchSummary{UID: uid, IndexUID: "movies", Succeeded: true}))
}
