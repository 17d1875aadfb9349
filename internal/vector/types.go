// Package vector implements C6, the vector subsystem: per-embedder document
// embeddings, ANN search, binary quantisation, prompt rendering, and the
// provider clients (userProvided, ollama, openAi, huggingFace, rest) named
// in spec §4.6.
package vector

import "context"

// Embedder generates vector embeddings for text, one instance per
// configured embedder name (spec §4.6).
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for multiple texts in one call. Nothing
	// splits a batch into chunks; Manager itself calls Embed once per
	// document.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width. Only the ollama embedder
	// infers it, by one probe request at construction when none is
	// configured; openAi, huggingFace and rest take it from configuration.
	Dimensions() int

	// Close releases any held resources (HTTP transports, ...).
	Close() error
}

// DistributionShift recentres a raw similarity score to spec §4.6's
// "mean=0.5, sigma=0.4, clamp to (0,1]" convention, so that scores from
// different embedders/metrics land on a comparable scale.
type DistributionShift struct {
	Mean  float64
	Sigma float64
}

// DefaultDistributionShift matches the spec's stated defaults.
func DefaultDistributionShift() DistributionShift {
	return DistributionShift{Mean: 0.5, Sigma: 0.4}
}

// Apply maps a raw similarity score (already in [0,1], 1 = identical) onto
// the shifted distribution, clamped to the open-closed interval (0,1].
func (d DistributionShift) Apply(score float64) float64 {
	shifted := (score-d.Mean)/d.Sigma*0.5 + 0.5
	if shifted <= 0 {
		return 0.0001
	}
	if shifted > 1 {
		return 1
	}
	return shifted
}
