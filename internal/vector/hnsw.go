package vector

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/ftscore/internal/errors"
)

// ANNMetric selects the distance function an ANNIndex uses.
type ANNMetric string

const (
	MetricCosine    ANNMetric = "cos"
	MetricEuclidean ANNMetric = "l2"
)

// ANNConfig parametrizes a per-embedder ANN index, mirroring the
// dimensions/metric fields tracked alongside each embedder's settings
// (spec §4.6).
type ANNConfig struct {
	Dimensions int
	Metric     ANNMetric
	M          int
	EfSearch   int
}

// DefaultANNConfig fills in the parameters the teacher's HNSW store treats
// as sane library defaults.
func DefaultANNConfig(dimensions int) ANNConfig {
	return ANNConfig{
		Dimensions: dimensions,
		Metric:     MetricCosine,
		M:          16,
		EfSearch:   20,
	}
}

// ANNResult is one neighbor returned by ANNIndex.Search.
type ANNResult struct {
	Docid    uint32
	Distance float32
	Score    float32
}

// ANNIndex is a per-embedder approximate nearest-neighbor index over
// document vectors, keyed directly by the engine's internal docid (unlike
// the teacher's HNSWStore, which maps opaque string IDs to dense uint64
// graph keys — here docids are already a dense uint32 space, so they serve
// as the graph key with no extra indirection).
type ANNIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint32]
	config ANNConfig
	// live tracks docids still present; deletions are lazy (orphaning the
	// graph node) because coder/hnsw has a known issue deleting the last
	// remaining node, the same workaround the teacher's store applies.
	live map[uint32]bool
}

// NewANNIndex builds an empty index for the given configuration.
func NewANNIndex(cfg ANNConfig) *ANNIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint32]()
	switch cfg.Metric {
	case MetricEuclidean:
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &ANNIndex{
		graph:  graph,
		config: cfg,
		live:   make(map[uint32]bool),
	}
}

// Add inserts or replaces docid's vector.
func (idx *ANNIndex) Add(docid uint32, vec []float32) error {
	if len(vec) != idx.config.Dimensions {
		return errors.New(errors.CodeEmbedDimension,
			fmt.Sprintf("vector has %d dimensions, index expects %d", len(vec), idx.config.Dimensions), nil)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	if idx.config.Metric == MetricCosine {
		normalizeInPlace(normalized)
	}

	idx.graph.Add(hnsw.MakeNode(docid, normalized))
	idx.live[docid] = true
	return nil
}

// Delete removes docid from the live set. The node stays orphaned in the
// graph until the index is next rebuilt from store.EmbedderVectors.
func (idx *ANNIndex) Delete(docid uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.live, docid)
}

// Search returns up to k nearest neighbors to query, skipping orphaned
// (deleted) docids, with raw distances mapped to a [0,1] score by metric.
func (idx *ANNIndex) Search(query []float32, k int) ([]ANNResult, error) {
	if len(query) != idx.config.Dimensions {
		return nil, errors.New(errors.CodeEmbedDimension,
			fmt.Sprintf("query has %d dimensions, index expects %d", len(query), idx.config.Dimensions), nil)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	if idx.config.Metric == MetricCosine {
		normalizeInPlace(normalized)
	}

	// Over-fetch to absorb orphaned nodes that Search may still surface.
	fetch := k
	if orphans := idx.graph.Len() - len(idx.live); orphans > 0 {
		fetch += orphans
	}
	nodes := idx.graph.Search(normalized, fetch)

	results := make([]ANNResult, 0, k)
	for _, node := range nodes {
		if !idx.live[node.Key] {
			continue
		}
		dist := idx.graph.Distance(normalized, node.Value)
		results = append(results, ANNResult{
			Docid:    node.Key,
			Distance: dist,
			Score:    distanceToScore(dist, idx.config.Metric),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Len reports the number of live (non-orphaned) vectors.
func (idx *ANNIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.live)
}

// Save persists the graph to path, atomically via a temp-file rename, the
// same pattern as the teacher's HNSWStore.Save.
func (idx *ANNIndex) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := idx.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load replaces the graph's contents from path, then the caller is
// expected to rebuild the live set from store.EmbedderVectors.ForEach since
// the on-disk graph format carries no liveness information.
func (idx *ANNIndex) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	if err := idx.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

// MarkLive records docid as present after a Load, used while rebuilding
// the live set from persisted vectors.
func (idx *ANNIndex) MarkLive(docid uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.live[docid] = true
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, f := range v {
		sumSquares += float64(f) * float64(f)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore converts a raw graph distance to a [0,1] similarity
// score before DistributionShift is applied (spec §4.6).
func distanceToScore(distance float32, metric ANNMetric) float32 {
	switch metric {
	case MetricEuclidean:
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}
