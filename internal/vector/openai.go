package vector

import (
	"context"
	"net/http"
	"time"

	"github.com/Aman-CERP/ftscore/internal/errors"
)

const defaultOpenAIURL = "https://api.openai.com/v1/embeddings"

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// OpenAIEmbedder calls OpenAI's /v1/embeddings endpoint (spec §4.6 embedder
// source "openAi"). Dimensions must be supplied by configuration since
// OpenAI's models document fixed widths rather than exposing them via a
// probe call.
type OpenAIEmbedder struct {
	url        string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
}

// NewOpenAIEmbedder builds a client for model against url (defaulting to
// the public OpenAI endpoint), authenticating with apiKey.
func NewOpenAIEmbedder(url, apiKey, model string, dimensions int) *OpenAIEmbedder {
	if url == "" {
		url = defaultOpenAIURL
	}
	return &OpenAIEmbedder{
		url:        url,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		client:     newPooledClient(60 * time.Second),
	}
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

func (e *OpenAIEmbedder) Close() error { return nil }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var resp openAIEmbedResponse
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}
	err := postJSON(ctx, e.client, e.url, headers,
		openAIEmbedRequest{Model: e.model, Input: texts}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.New(errors.CodeEmbedDimension,
			"openai returned a different number of embeddings than texts requested", nil)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, errors.New(errors.CodeEmbedTemplate, "openai response index out of range", nil)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
