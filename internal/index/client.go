// Package index provides a read-only client for the managed knowledge
// index's status endpoint. The index owns its own ingestion lifecycle;
// this service only observes sync state for health reporting.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Status reports the index's sync state
type Status struct {
	State         string    `json:"state"`
	LastSyncAt    time.Time `json:"lastSyncAt"`
	DocumentCount int       `json:"documentCount"`
}

// Active reports whether the index is serving queries
func (s *Status) Active() bool {
	return s.State == "ACTIVE"
}

// Client calls the knowledge index status API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an index client. An empty baseURL leaves the client
// unconfigured; callers should check Configured before probing.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Configured reports whether a status endpoint was provided
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Status fetches the current sync status
func (c *Client) Status(ctx context.Context) (*Status, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("index status endpoint not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach index: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index status error [%d]: %s", resp.StatusCode, string(body))
	}

	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	return &status, nil
}
