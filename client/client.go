package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/dossier/types"
)

// DefaultTimeout is the default timeout for one-shot API calls.
// The event feed is exempt; subscriptions live until closed.
const DefaultTimeout = 15 * time.Second

// Config configures the engine client.
type Config struct {
	// BaseURL is the engine's base URL (required), e.g. http://localhost:8000.
	BaseURL string
	// Timeout is the per-request timeout for one-shot calls (default 15s).
	Timeout time.Duration
	// Headers are custom HTTP headers added to every request.
	Headers map[string]string
}

// Client is an HTTP client for the pipeline engine API.
// Safe for concurrent use.
type Client struct {
	baseURL string
	oneshot *http.Client
	// streaming uses a separate transport-default client: a Timeout on the
	// http.Client would sever a healthy long-lived feed.
	streaming *http.Client
	headers   map[string]string
}

// New creates an engine client from the given config.
// Returns an error if the base URL is empty or unparseable.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("client requires a base URL")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must use http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		oneshot:   &http.Client{Timeout: cfg.Timeout},
		streaming: &http.Client{},
		headers:   headers,
	}, nil
}

// CreateRunResult is the engine's response to a run creation request.
type CreateRunResult struct {
	RunID  string          `json:"run_id"`
	Status types.RunStatus `json:"status"`
}

// CreateRun asks the engine to start a new analysis run for the given idea.
// Functions selects optional business-function stages; may be empty.
func (c *Client) CreateRun(ctx context.Context, idea string, functions []string) (*CreateRunResult, error) {
	if idea == "" {
		return nil, fmt.Errorf("create_run: idea must not be empty")
	}
	if functions == nil {
		functions = []string{}
	}

	body, err := json.Marshal(map[string]any{
		"idea":      idea,
		"functions": functions,
	})
	if err != nil {
		return nil, fmt.Errorf("create_run: marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/api/runs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.oneshot.Do(req)
	if err != nil {
		return nil, &APIError{Kind: ErrUnavailable, Op: "create_run", Err: err}
	}
	defer discardBody(resp)

	if err := classifyStatus("create_run", "", resp.StatusCode); err != nil {
		return nil, err
	}

	var result CreateRunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("create_run: decode response: %w", err)
	}
	return &result, nil
}

// GetRun fetches the current snapshot of a run. The returned document has
// the same shape the event feed emits, so the same merge path applies to
// both origins.
func (c *Client) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.runURL(runID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.oneshot.Do(req)
	if err != nil {
		return nil, &APIError{Kind: ErrUnavailable, Op: "get_run", RunID: runID, Err: err}
	}
	defer discardBody(resp)

	if err := classifyStatus("get_run", runID, resp.StatusCode); err != nil {
		return nil, err
	}

	var run types.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return nil, fmt.Errorf("get_run %s: decode snapshot: %w", runID, err)
	}
	return &run, nil
}

// ListRuns fetches the most recent runs, newest first.
// Entries are run documents; listings may carry fewer fields than a full
// snapshot.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]*types.Run, error) {
	u := c.baseURL + "/api/runs"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}

	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.oneshot.Do(req)
	if err != nil {
		return nil, &APIError{Kind: ErrUnavailable, Op: "list_runs", Err: err}
	}
	defer discardBody(resp)

	if err := classifyStatus("list_runs", "", resp.StatusCode); err != nil {
		return nil, err
	}

	var listing struct {
		Runs []*types.Run `json:"runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("list_runs: decode response: %w", err)
	}
	return listing.Runs, nil
}

// Artifact streams a generated report artifact (e.g. report.md, report.pdf).
// The caller owns the returned body and must close it.
func (c *Client) Artifact(ctx context.Context, runID, filename string) (io.ReadCloser, error) {
	if filename == "" {
		return nil, fmt.Errorf("artifact: filename must not be empty")
	}

	u := c.runURL(runID) + "/artifact/" + url.PathEscape(filename)
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.oneshot.Do(req)
	if err != nil {
		return nil, &APIError{Kind: ErrUnavailable, Op: "artifact", RunID: runID, Err: err}
	}

	if err := classifyStatus("artifact", runID, resp.StatusCode); err != nil {
		discardBody(resp)
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) runURL(runID string) string {
	return c.baseURL + "/api/runs/" + url.PathEscape(runID)
}

func (c *Client) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// classifyStatus maps an HTTP status to the error taxonomy.
// 2xx is success; 404 is terminal NotFound; 5xx and 429 are transient.
func classifyStatus(op, runID string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return &APIError{Kind: ErrNotFound, Op: op, RunID: runID, StatusCode: status}
	case status >= 500 || status == http.StatusTooManyRequests:
		return &APIError{Kind: ErrUnavailable, Op: op, RunID: runID, StatusCode: status}
	default:
		return &APIError{Kind: ErrUnavailable, Op: op, RunID: runID, StatusCode: status,
			Err: fmt.Errorf("unexpected HTTP status %d", status)}
	}
}

// discardBody drains and closes a response body so the connection can be
// reused.
func discardBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
