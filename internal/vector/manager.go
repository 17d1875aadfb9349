package vector

import (
	"context"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/codec"
	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/errors"
	"github.com/Aman-CERP/ftscore/internal/store"
)

// embedderState bundles one configured embedder's client, its in-memory
// ANN index (rebuilt from store.EmbedderVectors on open), and whether its
// stored vectors are binary-quantized.
type embedderState struct {
	settings   config.EmbedderSettings
	client     Embedder
	index      *ANNIndex
	quantized  bool
	quantIndex *QuantizedIndex
}

// Manager owns every configured embedder for one index: it renders prompts,
// calls the embedder client, writes vectors to store.EmbedderVectors, keeps
// each embedder's ANNIndex in sync, and answers query-time similarity
// lookups that feed rank.Context.VectorScores (spec §4.6).
type Manager struct {
	env *store.Environment

	mu    sync.RWMutex
	state map[string]*embedderState
}

// NewManager builds a Manager with no embedders configured; call Configure
// for each entry in settings.Embedders.
func NewManager(env *store.Environment) *Manager {
	return &Manager{env: env, state: map[string]*embedderState{}}
}

// Configure (re)builds the client and ANN index for one named embedder and
// rebuilds its index from whatever vectors are already on disk, so restarts
// and settings reloads converge back to the same live ranking behavior.
func (m *Manager) Configure(ctx context.Context, name string, cfg config.EmbedderSettings) error {
	client, err := NewEmbedder(ctx, name, cfg)
	if err != nil {
		return err
	}

	dims := cfg.Dimensions
	if dims <= 0 {
		dims = client.Dimensions()
	}

	storedQuantized, err := m.bucketIsQuantized(name)
	if err != nil {
		return err
	}
	if storedQuantized && !cfg.BinaryQuantized {
		return QuantizeDisableError(name)
	}
	quantized := cfg.BinaryQuantized || storedQuantized

	st := &embedderState{
		settings:  cfg,
		client:    client,
		quantized: quantized,
	}
	if quantized {
		st.quantIndex = NewQuantizedIndex(dims)
	} else {
		st.index = NewANNIndex(DefaultANNConfig(dims))
	}

	if err := m.rebuildFromStore(st, name); err != nil {
		return err
	}

	m.mu.Lock()
	if old, ok := m.state[name]; ok {
		old.client.Close()
	}
	m.state[name] = st
	m.mu.Unlock()
	return nil
}

func (m *Manager) bucketIsQuantized(name string) (bool, error) {
	var quantized bool
	err := m.env.View(func(tx *bbolt.Tx) error {
		quantized = m.env.Embedder(name).IsQuantized(tx)
		return nil
	})
	return quantized, err
}

func (m *Manager) rebuildFromStore(st *embedderState, name string) error {
	return m.env.View(func(tx *bbolt.Tx) error {
		v := m.env.Embedder(name)
		return v.ForEach(tx, func(docid uint32, data []byte) error {
			if st.quantized {
				return nil // QuantizedIndex scans the bucket directly at query time
			}
			vec, err := codec.DecodeVector(data)
			if err != nil {
				return err
			}
			return st.index.Add(docid, vec)
		})
	})
}

func (m *Manager) get(name string) (*embedderState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state[name]
	return st, ok
}

// distributionShiftFor builds the configured (or default) DistributionShift
// for one embedder.
func distributionShiftFor(cfg config.EmbedderSettings) DistributionShift {
	shift := DefaultDistributionShift()
	if cfg.DistributionMean != 0 {
		shift.Mean = cfg.DistributionMean
	}
	if cfg.DistributionSigma != 0 {
		shift.Sigma = cfg.DistributionSigma
	}
	return shift
}

// IndexDocument renders the document prompt (if regenerate is set),
// embeds it, optionally quantizes, and persists the vector under docid
// (spec §4.6 write flow). No-op if the embedder has no document template
// configured (userProvided embedders expect vectors supplied directly via
// WriteVector instead).
func (m *Manager) IndexDocument(ctx context.Context, tx *bbolt.Tx, name string, docid uint32, doc map[string]any, regenerate bool) error {
	st, ok := m.get(name)
	if !ok {
		return errors.New(errors.CodeInvalidSettingsEmbedders, "embedder \""+name+"\" is not configured", nil)
	}
	if !regenerate || st.settings.DocumentTemplate == "" {
		return nil
	}

	prompt, err := RenderDocumentTemplate(st.settings.DocumentTemplate, doc, st.settings.DocumentTemplateMaxBytes)
	if err != nil {
		return err
	}
	vec, err := st.client.Embed(ctx, prompt)
	if err != nil {
		return err
	}
	return m.WriteVector(tx, name, docid, vec)
}

// WriteVector stores vec for docid under the named embedder directly,
// bypassing prompt rendering, used both for userProvided embedders and by
// IndexDocument after it has computed a vector.
func (m *Manager) WriteVector(tx *bbolt.Tx, name string, docid uint32, vec []float32) error {
	st, ok := m.get(name)
	if !ok {
		return errors.New(errors.CodeInvalidSettingsEmbedders, "embedder \""+name+"\" is not configured", nil)
	}
	v := m.env.Embedder(name)

	if st.quantized {
		packed := codec.EncodeQuantizedVector(vec)
		if err := v.PutQuantized(tx, docid, packed); err != nil {
			return err
		}
		return nil
	}

	if v.IsQuantized(tx) {
		return QuantizeDisableError(name)
	}
	if err := v.Put(tx, docid, vec); err != nil {
		return err
	}
	if st.index != nil {
		if err := st.index.Add(docid, vec); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDocument removes docid's vector (if any) under the named embedder,
// called from the document-deletion path for every configured embedder.
func (m *Manager) DeleteDocument(tx *bbolt.Tx, name string, docid uint32) error {
	st, ok := m.get(name)
	if !ok {
		return nil
	}
	if err := m.env.Embedder(name).Delete(tx, docid); err != nil {
		return err
	}
	if st.index != nil {
		st.index.Delete(docid)
	}
	return nil
}

// EmbedQuery renders the embedder's query template (if any) against q and
// calls the embedder client, used when a search supplies text instead of a
// raw vector (spec §4.6 "render q through the embedder's query template").
func (m *Manager) EmbedQuery(ctx context.Context, name, q string) ([]float32, error) {
	st, ok := m.get(name)
	if !ok {
		return nil, errors.New(errors.CodeInvalidSettingsEmbedders, "embedder \""+name+"\" is not configured", nil)
	}
	rendered, err := RenderQueryTemplate(queryTemplateFor(st.settings), q)
	if err != nil {
		return nil, err
	}
	return st.client.Embed(ctx, rendered)
}

func queryTemplateFor(cfg config.EmbedderSettings) string {
	// There is no separate query-template setting: the query is rendered
	// through the document template with only {{q}} bound, so any
	// {{doc.*}} or {{fields}} reference in it renders empty.
	return cfg.DocumentTemplate
}

// Search returns docid -> shifted similarity score for the top k nearest
// vectors to query under the named embedder (spec §4.6 read flow: "raw
// distance mapped through DistributionShift before blending"). It feeds
// rank.Context.VectorScores directly.
func (m *Manager) Search(tx *bbolt.Tx, name string, query []float32, k int) (map[uint32]float64, error) {
	st, ok := m.get(name)
	if !ok {
		return nil, errors.New(errors.CodeInvalidSettingsEmbedders, "embedder \""+name+"\" is not configured", nil)
	}
	shift := distributionShiftFor(st.settings)

	var results []ANNResult
	var err error
	if st.quantized {
		results, err = st.quantIndex.Search(tx, m.env.Embedder(name), query, k)
	} else {
		results, err = st.index.Search(query, k)
	}
	if err != nil {
		return nil, err
	}

	out := make(map[uint32]float64, len(results))
	for _, r := range results {
		out[r.Docid] = shift.Apply(float64(r.Score))
	}
	return out, nil
}

// Close releases every configured embedder client's resources.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.state {
		st.client.Close()
	}
	return nil
}
