// Package connectors posts agent results back to the provider the webhook
// came from. Each connector knows one provider's comment/message API; retry
// and circuit breaking are layered on top by the result poster.
package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jordanhubbard/relay/pkg/models"
)

// Connector posts one result message to the source of a task. It returns
// the provider-assigned id of the created content, which the poster writes
// to the posted-content ledger.
type Connector interface {
	Provider() models.Provider
	PostResult(ctx context.Context, task *models.QueuedTask, body string) (contentID string, err error)
}

// APIError carries the HTTP status of a failed provider call so the retry
// predicate can tell transient failures from permanent ones.
type APIError struct {
	Provider   models.Provider
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api returned %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsRetryable reports whether err is worth retrying: network errors and
// 429/5xx responses are; other API errors are not.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// postJSON sends payload and decodes the JSON response into out (when out
// is non-nil). Non-2xx responses become *APIError.
func postJSON(ctx context.Context, provider models.Provider, url string, headers map[string]string, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", provider, err)
		}
	}
	return nil
}
