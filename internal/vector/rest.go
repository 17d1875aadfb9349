package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/osteele/liquid"

	"github.com/Aman-CERP/ftscore/internal/errors"
)

// restEngine renders the request/response JSON templates configured for a
// `rest` embedder (spec §4.6 "request/response JSON templates (for rest)").
var restEngine = liquid.NewEngine()

// RestEmbedder calls an arbitrary HTTP embedding endpoint, building the
// request body from a Liquid template and extracting vectors from the
// response with another, so it can front any provider that doesn't have a
// dedicated client (spec §4.6 embedder source "rest").
type RestEmbedder struct {
	url              string
	headers          map[string]string
	requestTemplate  string
	responseTemplate string
	dimensions       int
	client           *http.Client
}

// NewRestEmbedder builds a client posting to url with the given headers and
// request/response templates.
func NewRestEmbedder(url string, headers map[string]string, requestTemplate, responseTemplate string, dimensions int) *RestEmbedder {
	return &RestEmbedder{
		url:              url,
		headers:          headers,
		requestTemplate:  requestTemplate,
		responseTemplate: responseTemplate,
		dimensions:       dimensions,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (r *RestEmbedder) Dimensions() int { return r.dimensions }

func (r *RestEmbedder) Close() error { return nil }

// Embed renders the request template with {{text}} bound to text, posts it,
// then renders the response template against the decoded JSON body to pull
// out the embedding.
func (r *RestEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New(errors.CodeEmbedTransport, "rest embedder returned no vectors", nil)
	}
	return out[0], nil
}

// EmbedBatch posts once with {{texts}} bound to the whole batch and {{text}}
// bound to its first entry; the batch is never split into smaller requests.
func (r *RestEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	bodyStr, err := restEngine.ParseAndRenderString(r.requestTemplate, map[string]any{
		"texts": texts,
		"text":  firstOrEmpty(texts),
	})
	if err != nil {
		return nil, errors.New(errors.CodeEmbedTemplate, fmt.Sprintf("render request template: %v", err), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewBufferString(bodyStr))
	if err != nil {
		return nil, errors.New(errors.CodeEmbedTransport, fmt.Sprintf("build request: %v", err), err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeEmbedTransport, fmt.Sprintf("embed request: %v", err), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(errors.CodeEmbedTransport, fmt.Sprintf("read response: %v", err), err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.New(errors.CodeEmbedTransport, fmt.Sprintf("embed endpoint returned %d: %s", resp.StatusCode, raw), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, errors.New(errors.CodeEmbedTemplate, fmt.Sprintf("embed endpoint rejected request with %d: %s", resp.StatusCode, raw), nil)
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.New(errors.CodeEmbedTemplate, fmt.Sprintf("response is not valid JSON: %v", err), err)
	}

	extracted, err := restEngine.ParseAndRenderString(r.responseTemplate, map[string]any{"response": parsed})
	if err != nil {
		return nil, errors.New(errors.CodeEmbedTemplate, fmt.Sprintf("render response template: %v", err), err)
	}

	var vectors [][]float32
	if err := json.Unmarshal([]byte(extracted), &vectors); err == nil {
		return vectors, nil
	}
	var single []float32
	if err := json.Unmarshal([]byte(extracted), &single); err == nil {
		return [][]float32{single}, nil
	}
	return nil, errors.New(errors.CodeEmbedTemplate, "response template did not produce a JSON vector or vector array", nil)
}

func firstOrEmpty(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	return texts[0]
}
