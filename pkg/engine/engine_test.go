package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/query/pipeline"
	"github.com/Aman-CERP/ftscore/internal/scheduler"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(Options{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func waitForTerminal(t *testing.T, e *Engine, uid uint32) scheduler.Task {
	t.Helper()
	var task scheduler.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = e.GetTask(uid)
		if err != nil {
			return false
		}
		switch task.Status {
		case scheduler.StatusSucceeded, scheduler.StatusFailed, scheduler.StatusCanceled:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	return task
}

func TestCreateIndexThenAddDocumentsAndSearch(t *testing.T) {
	e := openTestEngine(t)

	require.NoError(t, e.CreateIndex("movies", "id"))

	task, err := e.AddDocuments("movies", []map[string]any{
		{"id": "1", "title": "Arrival"},
		{"id": "2", "title": "Interstellar"},
	}, nil)
	require.NoError(t, err)

	got := waitForTerminal(t, e, task.UID)
	assert.Equal(t, scheduler.StatusSucceeded, got.Status)

	resp, err := e.Search("movies", pipeline.Request{Query: "Arrival", Limit: 10})
	require.NoError(t, err)
	assert.NotZero(t, len(resp.Hits))
}

func TestDeleteIndexRemovesItFromIndexes(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateIndex("movies", "id"))

	uids, err := e.Indexes()
	require.NoError(t, err)
	assert.Equal(t, []string{"movies"}, uids)

	require.NoError(t, e.DeleteIndex("movies"))

	uids, err = e.Indexes()
	require.NoError(t, err)
	assert.Empty(t, uids)
}

func TestCreateIndexTwiceFails(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateIndex("movies", "id"))
	err := e.CreateIndex("movies", "id")
	require.Error(t, err)
}

func TestSwapIndexesExchangesUIDs(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateIndex("movies", "id"))
	require.NoError(t, e.CreateIndex("movies_new", "id"))

	require.NoError(t, e.SwapIndexes("movies", "movies_new"))

	uids, err := e.Indexes()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"movies", "movies_new"}, uids)
}

func TestUpdateSettingsAppliesImmediatelyAndLogsTask(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateIndex("movies", "id"))

	settings := config.DefaultSettings()
	settings.SearchableAttributes = []string{"title"}

	task, err := e.UpdateSettings("movies", settings)
	require.NoError(t, err)
	assert.Equal(t, scheduler.KindSettingsUpdate, task.Kind)

	idx, err := e.get("movies")
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, idx.env.Settings().Get().SearchableAttributes)
}

func TestCreateSnapshotTaskSucceeds(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateIndex("movies", "id"))

	task, err := e.CreateSnapshot("movies", t.TempDir())
	require.NoError(t, err)

	got := waitForTerminal(t, e, task.UID)
	assert.Equal(t, scheduler.StatusSucceeded, got.Status)
}

func TestCreateDumpTaskSucceeds(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateIndex("movies", "id"))

	task, err := e.CreateDump(t.TempDir())
	require.NoError(t, err)

	got := waitForTerminal(t, e, task.UID)
	assert.Equal(t, scheduler.StatusSucceeded, got.Status)
}

func TestCancelTaskBeforeRunMarksCanceled(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateIndex("movies", "id"))

	task, err := e.AddDocuments("movies", []map[string]any{{"id": "1", "title": "Dune"}}, nil)
	require.NoError(t, err)
	require.NoError(t, e.CancelTask(task.UID))

	got, err := e.GetTask(task.UID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusCanceled, got.Status)
}

func TestReopenLoadsExistingIndexes(t *testing.T) {
	dir := t.TempDir()

	e1, err := Open(Options{DataDir: dir})
	require.NoError(t, err)
	require.NoError(t, e1.CreateIndex("movies", "id"))
	require.NoError(t, e1.Close())

	e2, err := Open(Options{DataDir: dir})
	require.NoError(t, err)
	defer e2.Close()

	uids, err := e2.Indexes()
	require.NoError(t, err)
	assert.Equal(t, []string{"movies"}, uids)
}
