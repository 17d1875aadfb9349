package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Aman-CERP/ftscore/internal/errors"
)

// newPooledClient builds an http.Client with a connection pool sized for
// embedding request bursts, the same rationale as the teacher's
// OllamaEmbedder (short-lived indexing runs want quick idle teardown, not
// a long-held pool).
func newPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     10 * time.Second,
		},
	}
}

// postJSON posts body as JSON to url with the given headers, retrying
// transient failures via errors.Retry, and decodes the response into out.
// 5xx/429 responses are treated as retryable transport errors (spec §4.6
// "transient HTTP errors -> EmbedError::Transport"); other 4xx responses
// and bad JSON are structural and are returned on the first attempt
// without burning the retry budget.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return errors.New(errors.CodeEmbedTemplate, fmt.Sprintf("marshal request: %v", err), err)
	}

	var structural error
	retryErr := errors.Retry(ctx, errors.DefaultRetryConfig(), func() error {
		reqErr := doPostOnce(ctx, client, url, headers, encoded, out)
		if reqErr != nil && !errors.IsRetryable(reqErr) {
			structural = reqErr
			return nil // stop Retry's loop; we already have the final answer
		}
		return reqErr
	})
	if structural != nil {
		return structural
	}
	return retryErr
}

func doPostOnce(ctx context.Context, client *http.Client, url string, headers map[string]string, encoded []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return errors.New(errors.CodeEmbedTransport, fmt.Sprintf("build request: %v", err), err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.New(errors.CodeEmbedTransport, fmt.Sprintf("request %s: %v", url, err), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.New(errors.CodeEmbedTransport, fmt.Sprintf("read response: %v", err), err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return errors.New(errors.CodeEmbedTransport, fmt.Sprintf("%s returned %d: %s", url, resp.StatusCode, raw), nil)
	}
	if resp.StatusCode >= 400 {
		return errors.New(errors.CodeEmbedTemplate, fmt.Sprintf("%s rejected request with %d: %s", url, resp.StatusCode, raw), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.New(errors.CodeEmbedTemplate, fmt.Sprintf("decode response from %s: %v", url, err), err)
	}
	return nil
}
