// Package client is the Go client for the contract analysis engine.
// This is the stable API for external consumers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/contractclarity/engine/internal/domain"
)

// Client talks to a running engine over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a client for the engine at baseURL.
// Example:
//
//	cl := client.New("http://localhost:5000")
//	taskID, err := cl.Analyze(ctx, client.AnalyzeRequest{
//	    Text:     contractText,
//	    Category: "LaborEmployment",
//	})
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnalyzeRequest is one contract submission.
type AnalyzeRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
	Language string `json:"language,omitempty"`
}

// TaskStatus is a point-in-time view of a task.
type TaskStatus struct {
	TaskID    string                 `json:"task_id"`
	State     domain.TaskState       `json:"state"`
	Progress  string                 `json:"progress"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Result    *domain.AnalysisResult `json:"result,omitempty"`
	Error     *domain.APIError       `json:"error,omitempty"`
}

// Analyze submits a contract and returns the task identifier.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (string, error) {
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/analyze", req, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// Status fetches the current state of a task.
func (c *Client) Status(ctx context.Context, taskID string) (TaskStatus, error) {
	var status TaskStatus
	err := c.do(ctx, http.MethodGet, "/status/"+taskID, nil, &status)
	return status, err
}

// Cancel requests best-effort cancellation of a running task.
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+taskID, nil, nil)
}

// Languages fetches the supported output-language table.
func (c *Client) Languages(ctx context.Context) (map[string]string, error) {
	var langs map[string]string
	err := c.do(ctx, http.MethodGet, "/languages", nil, &langs)
	return langs, err
}

// PollUntilDone polls a task until it reaches a terminal state or ctx
// expires. A FAILED task returns its status alongside the task error.
func (c *Client) PollUntilDone(ctx context.Context, taskID string, interval time.Duration) (TaskStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := c.Status(ctx, taskID)
		if err != nil {
			return status, err
		}
		if status.State.Terminal() {
			if status.Error != nil {
				return status, status.Error
			}
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError turns an engine error response back into an APIError so
// callers can branch on its kind.
func decodeError(resp *http.Response) error {
	var envelope struct {
		Error *domain.APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != nil {
		return envelope.Error
	}
	return fmt.Errorf("engine returned status %d", resp.StatusCode)
}
