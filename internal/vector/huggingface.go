package vector

import (
	"context"
	"net/http"
	"time"

	"github.com/Aman-CERP/ftscore/internal/errors"
)

const defaultHuggingFaceURL = "https://api-inference.huggingface.co/pipeline/feature-extraction/"

type huggingFaceRequest struct {
	Inputs  []string       `json:"inputs"`
	Options map[string]any `json:"options,omitempty"`
}

// HuggingFaceEmbedder calls the HuggingFace Inference API's
// feature-extraction pipeline for the configured model (spec §4.6 embedder
// source "huggingFace"). The endpoint returns a bare JSON array of vectors
// (or of token vectors when the model doesn't pool), so pooling is left to
// the model id chosen by the operator rather than renegotiated here.
type HuggingFaceEmbedder struct {
	url        string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
}

// NewHuggingFaceEmbedder builds a client for model, defaulting url to the
// public inference API's feature-extraction pipeline for that model.
func NewHuggingFaceEmbedder(url, apiKey, model string, dimensions int) *HuggingFaceEmbedder {
	if url == "" {
		url = defaultHuggingFaceURL + model
	}
	return &HuggingFaceEmbedder{
		url:        url,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		client:     newPooledClient(60 * time.Second),
	}
}

func (e *HuggingFaceEmbedder) Dimensions() int { return e.dimensions }

func (e *HuggingFaceEmbedder) Close() error { return nil }

func (e *HuggingFaceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *HuggingFaceEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}
	err := postJSON(ctx, e.client, e.url, headers,
		huggingFaceRequest{Inputs: texts, Options: map[string]any{"wait_for_model": true}}, &vectors)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, errors.New(errors.CodeEmbedDimension,
			"huggingface returned a different number of embeddings than texts requested", nil)
	}
	return vectors, nil
}
