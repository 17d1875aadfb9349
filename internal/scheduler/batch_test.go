package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func taskSeq(tasks ...Task) []Task {
	for i := range tasks {
		tasks[i].UID = uint32(i)
	}
	return tasks
}

func TestNextBatchIndexDeletionAbsorbsAllPriorTasksOnIndex(t *testing.T) {
	candidates := taskSeq(
		Task{IndexUID: "movies", Kind: KindDocumentAddition},
		Task{IndexUID: "movies", Kind: KindIndexDeletion},
		Task{IndexUID: "movies", Kind: KindDocumentAddition},
		Task{IndexUID: "books", Kind: KindDocumentAddition},
	)
	// Anchor on the deletion task directly (the scheduler always picks the
	// globally oldest task as the anchor; here we isolate the grouping
	// rule by anchoring the candidate slice on the deletion task itself).
	batch := NextBatch(candidates[1:])
	assert.Equal(t, KindIndexDeletion, batch.Tasks[0].Kind)
	assert.Len(t, batch.Tasks, 2) // deletion + the later movies addition
}

func TestNextBatchIndexCreationIsSingleton(t *testing.T) {
	candidates := taskSeq(
		Task{IndexUID: "movies", Kind: KindIndexCreation},
		Task{IndexUID: "movies", Kind: KindDocumentAddition},
	)
	batch := NextBatch(candidates)
	assert.Len(t, batch.Tasks, 1)
}

func TestNextBatchSettingsUpdateGroupsWhileContiguous(t *testing.T) {
	candidates := taskSeq(
		Task{IndexUID: "movies", Kind: KindSettingsUpdate},
		Task{IndexUID: "movies", Kind: KindSettingsUpdate},
		Task{IndexUID: "movies", Kind: KindDocumentAddition},
		Task{IndexUID: "movies", Kind: KindSettingsUpdate},
	)
	batch := NextBatch(candidates)
	assert.Len(t, batch.Tasks, 2) // stops at the intervening document task
}

func TestNextBatchDocumentTasksInterleaveInEnqueueOrder(t *testing.T) {
	candidates := taskSeq(
		Task{IndexUID: "movies", Kind: KindDocumentAddition},
		Task{IndexUID: "movies", Kind: KindDocumentDeletion},
		Task{IndexUID: "movies", Kind: KindDocumentAddition},
	)
	batch := NextBatch(candidates)
	assert.Len(t, batch.Tasks, 3)
}

func TestNextBatchDocumentTasksStopAtInterveningSettingsUpdate(t *testing.T) {
	candidates := taskSeq(
		Task{IndexUID: "movies", Kind: KindDocumentAddition},
		Task{IndexUID: "movies", Kind: KindSettingsUpdate},
		Task{IndexUID: "movies", Kind: KindDocumentAddition},
	)
	batch := NextBatch(candidates)
	assert.Len(t, batch.Tasks, 1)
}

func TestNextBatchIgnoresOtherIndexes(t *testing.T) {
	candidates := taskSeq(
		Task{IndexUID: "movies", Kind: KindDocumentAddition},
		Task{IndexUID: "books", Kind: KindDocumentAddition},
		Task{IndexUID: "movies", Kind: KindDocumentAddition},
	)
	batch := NextBatch(candidates)
	assert.Len(t, batch.Tasks, 2)
	assert.Equal(t, "movies", batch.IndexUID)
}

func TestPauseAllOnlyForSnapshotAndDump(t *testing.T) {
	assert.True(t, PauseAll(KindSnapshotCreation))
	assert.True(t, PauseAll(KindDumpCreation))
	assert.False(t, PauseAll(KindDocumentAddition))
}

func TestNextBatchEmptyCandidates(t *testing.T) {
	batch := NextBatch(nil)
	assert.Empty(t, batch.Tasks)
}
