package vector

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Aman-CERP/ftscore/internal/errors"
)

const defaultOllamaHost = "http://localhost:11434"

// ollamaEmbedRequest mirrors Ollama's /api/embed request body.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse mirrors Ollama's /api/embed response body.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaEmbedder calls a local Ollama server's embedding endpoint, trimmed
// from the teacher's OllamaEmbedder down to the request/response shape and
// dimension auto-detection; the thermal-aware progressive timeout and
// model-discovery fallback list are dropped since this engine's embedder
// config names one model explicitly rather than probing what's installed.
type OllamaEmbedder struct {
	host       string
	model      string
	dimensions int
	client     *http.Client
}

// NewOllamaEmbedder builds a client against host (defaulting to
// http://localhost:11434) for the named model. If dimensions is 0 it is
// auto-detected from a single test embedding, matching spec §4.6
// "dimensions inferred for non-userProvided" embedders.
func NewOllamaEmbedder(ctx context.Context, host, model string, dimensions int) (*OllamaEmbedder, error) {
	if host == "" {
		host = defaultOllamaHost
	}

	e := &OllamaEmbedder{
		host:       host,
		model:      model,
		dimensions: dimensions,
		client:     newPooledClient(60 * time.Second),
	}

	if e.dimensions == 0 {
		vecs, err := e.embedBatchRaw(ctx, []string{"dimension probe"})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 0 || len(vecs[0]) == 0 {
			return nil, errors.New(errors.CodeEmbedDimension, "ollama returned an empty embedding during dimension probe", nil)
		}
		e.dimensions = len(vecs[0])
	}

	return e, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dimensions }

func (e *OllamaEmbedder) Close() error { return nil }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dimensions), nil
	}
	vecs, err := e.embedBatchRaw(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embedBatchRaw(ctx, texts)
}

func (e *OllamaEmbedder) embedBatchRaw(ctx context.Context, texts []string) ([][]float32, error) {
	var resp ollamaEmbedResponse
	err := postJSON(ctx, e.client, e.host+"/api/embed", nil,
		ollamaEmbedRequest{Model: e.model, Input: texts}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, errors.New(errors.CodeEmbedDimension,
			"ollama returned a different number of embeddings than texts requested", nil)
	}
	return resp.Embeddings, nil
}
