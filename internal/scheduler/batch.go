package scheduler

// Batch is one group of tasks picked to run together against the same
// index under one writer transaction (spec §4.5 "batching algorithm").
type Batch struct {
	IndexUID string
	Tasks    []Task
}

// NextBatch scans candidates (already oldest-first, non-cancelled) and
// greedily absorbs compatible tasks into the batch anchored on the first
// one, per spec §4.5's five rules:
//
//  1. IndexDeletion absorbs every prior task queued against that index.
//  2. IndexCreation/IndexUpdate/IndexSwap are singleton batches.
//  3. SettingsUpdate tasks group while contiguous (stops at the first
//     non-SettingsUpdate task for the same index).
//  4. DocumentAddition/Update and DocumentDeletion interleave in
//     enqueue order, both absorbed into the same batch.
//  5. SnapshotCreation/DumpCreation are singleton batches that pause
//     every other index (the caller enforces the pause; NextBatch just
//     never groups anything else alongside one).
//
// candidates must all be enqueued (not cancelled, not already batched).
func NextBatch(candidates []Task) Batch {
	if len(candidates) == 0 {
		return Batch{}
	}

	anchor := candidates[0]
	batch := Batch{IndexUID: anchor.IndexUID, Tasks: []Task{anchor}}

	switch anchor.Kind {
	case KindIndexCreation, KindIndexUpdate, KindIndexSwap,
		KindSnapshotCreation, KindDumpCreation:
		return batch // singleton

	case KindIndexDeletion:
		for _, t := range candidates[1:] {
			if t.IndexUID == anchor.IndexUID {
				batch.Tasks = append(batch.Tasks, t)
			}
		}
		return batch

	case KindSettingsUpdate:
		for _, t := range candidates[1:] {
			if t.IndexUID != anchor.IndexUID {
				continue
			}
			if t.Kind != KindSettingsUpdate {
				break // contiguity stops at the first non-SettingsUpdate task
			}
			batch.Tasks = append(batch.Tasks, t)
		}
		return batch

	case KindDocumentAddition, KindDocumentDeletion:
		for _, t := range candidates[1:] {
			if t.IndexUID != anchor.IndexUID {
				continue
			}
			if t.Kind != KindDocumentAddition && t.Kind != KindDocumentDeletion {
				continue // a same-index task of another kind; blocksDocumentBatch stops the batch at the next document task after it
			}
			if blocksDocumentBatch(candidates, anchor, t) {
				break
			}
			batch.Tasks = append(batch.Tasks, t)
		}
		return batch

	default:
		return batch
	}
}

// blocksDocumentBatch reports whether an intervening task on the same
// index sits strictly between anchor and candidate in enqueue order and
// is not itself a document addition/deletion task — such a task (e.g. a
// settings update or index deletion) must run first, so the document
// batch stops growing at that point.
func blocksDocumentBatch(candidates []Task, anchor, candidate Task) bool {
	inWindow := false
	for _, t := range candidates {
		if t.UID == anchor.UID {
			inWindow = true
			continue
		}
		if t.UID == candidate.UID {
			return false
		}
		if !inWindow || t.IndexUID != anchor.IndexUID {
			continue
		}
		if t.Kind != KindDocumentAddition && t.Kind != KindDocumentDeletion {
			return true
		}
	}
	return false
}

// PauseAll reports whether kind is a batch type that must run alone,
// pausing every other index while it executes (spec §4.5 rule 5).
func PauseAll(kind TaskKind) bool {
	return kind == KindSnapshotCreation || kind == KindDumpCreation
}
