// Package llm is the transport to the external language-model service:
// a chat-completions client with structured-output mode, canonical error
// classification, and a bounded retry wrapper for transient failures.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/contractclarity/engine/internal/domain"
)

// Completer issues one model invocation per call. No retries happen at
// this layer; the Retrier wrapper handles transient failures.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is one generation request with a fixed budget.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client talks to an OpenAI-compatible chat-completions endpoint with
// JSON response mode forced, since every stage consumes structured
// output.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ Completer = (*Client)(nil)

// NewClient creates a model-service client.
func NewClient(apiKey, baseURL, model string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one chat completion and returns the raw model text.
// Failures are classified canonically: network and timeout problems and
// 5xx responses become upstream_unavailable; explicit 4xx provider
// rejections become upstream_rejected.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:          c.model,
		Messages:       []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", domain.ErrInternal("marshal completion request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", domain.ErrInternal("create completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if IsTimeout(err) {
			return "", domain.ErrUpstreamUnavailable("model service timed out", err)
		}
		return "", domain.ErrUpstreamUnavailable("model service unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.ErrUpstreamUnavailable("read model response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPError(resp.StatusCode, respBody)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", domain.ErrUpstreamUnavailable("malformed model response", err)
	}
	if result.Error != nil {
		return "", domain.ErrUpstreamRejected(result.Error.Message, nil)
	}
	if len(result.Choices) == 0 {
		return "", domain.ErrUpstreamRejected("model returned no choices", nil)
	}
	return result.Choices[0].Message.Content, nil
}

// classifyHTTPError maps a provider HTTP failure to the canonical
// taxonomy. Server-side trouble is transient; anything the provider
// explicitly rejected is not worth retrying.
func classifyHTTPError(status int, body []byte) *domain.APIError {
	message := providerMessage(body)
	if message == "" {
		message = fmt.Sprintf("provider error (status %d)", status)
	}

	if status >= http.StatusInternalServerError || status == http.StatusRequestTimeout {
		return domain.ErrUpstreamUnavailable(message, nil)
	}
	return domain.ErrUpstreamRejected(message, nil)
}

// providerMessage pulls the human-readable message out of a provider
// error body, if it has the usual {"error":{"message":...}} shape.
func providerMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return strings.TrimSpace(string(body))
	}
	return parsed.Error.Message
}

// IsTimeout reports whether err is a context deadline or cancellation,
// which the client surfaces as upstream_unavailable.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
