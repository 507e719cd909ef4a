// Package httpadvisor calls an external prediction service for prompt
// advice. The service is optional; callers treat failures as an empty
// advice block.
package httpadvisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/formsage/formsage/internal/core/ports/driven"
)

// Ensure Advisor implements the interface.
var _ driven.Advisor = (*Advisor)(nil)

// DefaultTimeout bounds a single advice request.
const DefaultTimeout = 10 * time.Second

// Advisor fetches advice text from an HTTP endpoint.
type Advisor struct {
	client *http.Client
	url    string
}

// New creates an advisor for the given endpoint URL.
func New(url string, timeout time.Duration) *Advisor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Advisor{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Advise posts the profile and returns the service's advice text.
func (a *Advisor) Advise(ctx context.Context, profile map[string]any) (string, error) {
	jsonBody, err := json.Marshal(map[string]any{"profile": profile})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("advisor error (status %d): %s", resp.StatusCode, string(body))
	}

	var adviceResp struct {
		Advice string `json:"advice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&adviceResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return adviceResp.Advice, nil
}
