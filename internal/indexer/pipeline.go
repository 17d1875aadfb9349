package indexer

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/store"
)

// RawDocument is one document as received from a task's payload, keyed by
// field name to raw JSON (spec §4.3.1 "Document batch").
type RawDocument map[string]json.RawMessage

// Batch is one indexing pipeline run's unit of work: documents to upsert
// and external ids to delete (spec §4.3.1 "one committed transaction per
// batch").
type Batch struct {
	PrimaryKey string
	Upserts    []RawDocument
	Deletes    []string
}

// Pipeline drives C3 end to end: primary-key resolution, docid assignment,
// version materialisation against the current stored document, parallel
// extraction, merge-and-write, and post-processing (spec §4.3.1-4.3.3).
type Pipeline struct {
	env        *store.Environment
	docids     *store.DocidAllocator
	cache      *ExtractionCache
	committer  *Committer
	fst        *FSTMaintainer
	facetTrees *FacetTreeBuilder

	concurrency int
}

// PipelineOptions configures Pipeline worker concurrency and cache sizing.
type PipelineOptions struct {
	Concurrency   int
	CacheCapacity int
}

// NewPipeline builds a pipeline bound to env, loading the persisted docid
// allocator.
func NewPipeline(env *store.Environment, opts PipelineOptions) (*Pipeline, error) {
	docids, err := store.LoadDocidAllocator(env)
	if err != nil {
		return nil, fmt.Errorf("load docid allocator: %w", err)
	}

	cache, err := NewExtractionCache(opts.CacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("build extraction cache: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Pipeline{
		env:         env,
		docids:      docids,
		cache:       cache,
		committer:   NewCommitter(env),
		fst:         NewFSTMaintainer(env),
		facetTrees:  NewFacetTreeBuilder(env),
		concurrency: concurrency,
	}, nil
}

// Run resolves, extracts, commits, and post-processes one batch, returning
// the commit summary. This is the single entry point the scheduler (C5)
// calls per indexing task.
func (p *Pipeline) Run(batch Batch) (*CommitResult, error) {
	changes, err := p.resolveChanges(batch)
	if err != nil {
		return nil, fmt.Errorf("resolve document changes: %w", err)
	}
	if len(changes) == 0 {
		return newCommitResult(), nil
	}

	deltas, err := p.extractAll(changes)
	if err != nil {
		return nil, fmt.Errorf("extract batch: %w", err)
	}

	result, err := p.committer.Commit(changes, deltas)
	if err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}

	if err := p.env.Update(func(tx *bbolt.Tx) error {
		return p.docids.Save(tx)
	}); err != nil {
		return nil, fmt.Errorf("persist docid allocator: %w", err)
	}

	if err := p.fst.Rebuild(result); err != nil {
		return nil, fmt.Errorf("rebuild word fst: %w", err)
	}

	for fid, delta := range result.FacetFidDeltas {
		if err := p.facetTrees.RebuildF64(fid, delta.Bulk); err != nil {
			return nil, fmt.Errorf("rebuild f64 facet tree for fid %d: %w", fid, err)
		}
		if err := p.facetTrees.RebuildString(fid, delta.Bulk); err != nil {
			return nil, fmt.Errorf("rebuild string facet tree for fid %d: %w", fid, err)
		}
	}

	return result, nil
}

// resolveChanges assigns/looks-up docids for every upsert and delete, and
// materialises each document's Current state from the store so extraction
// can diff against it (spec §4.3.2 steps 2-3).
func (p *Pipeline) resolveChanges(batch Batch) ([]DocumentChange, error) {
	changes := make([]DocumentChange, 0, len(batch.Upserts)+len(batch.Deletes))

	err := p.env.View(func(tx *bbolt.Tx) error {
		for _, doc := range batch.Upserts {
			external, err := primaryKeyValue(doc, batch.PrimaryKey)
			if err != nil {
				return err
			}

			_, existed := p.docids.Lookup(external)
			docid := p.docids.Assign(external)

			var current RawDocument
			if existed {
				current, err = decodeStoredDocument(tx, p.env, docid)
				if err != nil {
					return err
				}
			}

			kind := Insertion
			if existed {
				kind = Update
			}

			changes = append(changes, DocumentChange{
				Kind:       kind,
				Docid:      docid,
				ExternalID: external,
				Current:    current,
				Merged:     doc,
			})
		}

		for _, external := range batch.Deletes {
			docid, ok := p.docids.Lookup(external)
			if !ok {
				continue // deleting a document that was never indexed is a no-op
			}
			current, err := decodeStoredDocument(tx, p.env, docid)
			if err != nil {
				return err
			}
			changes = append(changes, DocumentChange{
				Kind:       Deletion,
				Docid:      docid,
				ExternalID: external,
				Current:    current,
			})
			p.docids.Free(docid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func primaryKeyValue(doc RawDocument, primaryKey string) (string, error) {
	raw, ok := doc[primaryKey]
	if !ok {
		return "", fmt.Errorf("document missing primary key field %q", primaryKey)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("decode primary key field %q: %w", primaryKey, err)
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", fmt.Errorf("primary key field %q is empty", primaryKey)
		}
		return t, nil
	case float64:
		return fmt.Sprintf("%d", int64(t)), nil
	default:
		return "", fmt.Errorf("primary key field %q must be a string or integer", primaryKey)
	}
}

func decodeStoredDocument(tx *bbolt.Tx, env *store.Environment, docid uint32) (RawDocument, error) {
	blob := env.GetDocument(tx, docid)
	if blob == nil {
		return nil, nil
	}
	return decodeOBKVDocument(env, blob)
}

// extractAll runs extraction for every change concurrently, bounded by
// p.concurrency, each worker owning its own Extractor instance since
// Extractor is not itself concurrency-safe (spec §4.3.2 step 4 "parallel
// extraction").
func (p *Pipeline) extractAll(changes []DocumentChange) ([]*Deltas, error) {
	settings := p.env.Settings().Get()
	fields := p.env.Fields()

	results := make([]*Deltas, len(changes))

	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)

	for i, ch := range changes {
		i, ch := i, ch
		g.Go(func() error {
			cacheKey, ok := cacheKeyFor(ch, settings)
			if ok {
				if cached, hit := p.cache.Get(cacheKey); hit {
					results[i] = cached
					return nil
				}
			}

			extractor := NewExtractor(fields, settings)
			d, err := extractor.Extract(ch)
			if err != nil {
				return fmt.Errorf("extract docid %d: %w", ch.Docid, err)
			}
			results[i] = d
			if ok {
				p.cache.Put(cacheKey, d)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// cacheKeyFor derives a cache key from the docid and the raw bytes of the
// stored and merged documents and of the settings, since Extract's Del side
// depends on the stored version and its output on the settings; a deletion
// has no merged content worth caching against future inserts.
func cacheKeyFor(ch DocumentChange, settings config.Settings) (string, bool) {
	if ch.Merged == nil {
		return "", false
	}
	data, err := json.Marshal(ch.Merged)
	if err != nil {
		return "", false
	}
	prev, err := json.Marshal(ch.Current)
	if err != nil {
		return "", false
	}
	conf, err := json.Marshal(settings)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%d:%s:%s:%s", ch.Docid, conf, prev, data), true
}
