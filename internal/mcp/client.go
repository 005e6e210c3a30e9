// Package mcp provides MCP server tools for the transaction submitter.
package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gateway-fm/transactioneer/internal/storage"
	"github.com/gateway-fm/transactioneer/internal/transport"
	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// Client is a typed HTTP client for the submission engine API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new submission engine client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// EnqueueResult is the engine's answer to a batch enqueue.
type EnqueueResult struct {
	Status     string `json:"status"`
	Accepted   int    `json:"accepted"`
	QueueDepth int    `json:"queueDepth"`
	Error      string `json:"error,omitempty"`
}

// ReadyReport is the engine's readiness result, one check per endpoint.
type ReadyReport struct {
	Ready  bool                      `json:"ready"`
	Checks []transport.EndpointCheck `json:"checks"`
}

// Status fetches the live engine counters.
func (c *Client) Status() (*ptypes.Stats, error) {
	var stats ptypes.Stats
	if err := c.do(http.MethodGet, "/v1/status", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Ready queries the engine's readiness endpoint. The per-endpoint checks are
// returned even when the service reports not ready (HTTP 503).
func (c *Client) Ready() (*ReadyReport, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/ready")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var report ReadyReport
	if err := json.Unmarshal(body, &report); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &report, nil
}

// EnqueueBatch submits work items for paced submission.
func (c *Client) EnqueueBatch(items []ptypes.WorkItem) (*EnqueueResult, error) {
	var result EnqueueResult
	payload := map[string][]ptypes.WorkItem{"items": items}
	if err := c.do(http.MethodPost, "/v1/enqueue/batch", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stop asks the engine to close its queue and drain.
func (c *Client) Stop() error {
	return c.do(http.MethodPost, "/v1/stop", nil, nil)
}

// ListRuns fetches a page of completed engine runs.
func (c *Client) ListRuns(limit, offset int) (*storage.PaginatedRuns, error) {
	var page storage.PaginatedRuns
	path := fmt.Sprintf("/v1/runs?limit=%d&offset=%d", limit, offset)
	if err := c.do(http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetRun fetches one run's summary by ID.
func (c *Client) GetRun(id string) (*ptypes.RunSummary, error) {
	var run ptypes.RunSummary
	if err := c.do(http.MethodGet, "/v1/runs/"+id, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// RunSubmissions fetches a page of submission records for one run.
func (c *Client) RunSubmissions(id string, limit, offset int) (*storage.PaginatedSubmissions, error) {
	var page storage.PaginatedSubmissions
	path := fmt.Sprintf("/v1/runs/%s/submissions?limit=%d&offset=%d", id, limit, offset)
	if err := c.do(http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// LookupTx fetches a recorded submission by transaction hash.
func (c *Client) LookupTx(hash string) (*ptypes.SubmissionRecord, error) {
	var rec ptypes.SubmissionRecord
	if err := c.do(http.MethodGet, "/v1/tx/"+hash, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteRun removes a run and its submission records.
func (c *Client) DeleteRun(id string) error {
	return c.do(http.MethodDelete, "/v1/runs/"+id, nil, nil)
}

// do performs one API request, marshaling the payload and decoding the
// response into out when non-nil.
func (c *Client) do(method, path string, payload, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
