// Package retrieval answers category-scoped similarity queries against
// the legal-provision index built offline by the ingest job.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Embedder converts text to a vector. The engine treats it as a pure
// function; any failure degrades retrieval rather than failing a task.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderOption configures the HTTP embedder.
type EmbedderOption func(*HTTPEmbedder)

// WithEmbedderHTTPClient sets a custom HTTP client.
func WithEmbedderHTTPClient(httpClient *http.Client) EmbedderOption {
	return func(e *HTTPEmbedder) {
		e.httpClient = httpClient
	}
}

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint.
type HTTPEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates an embedding client for the given service.
func NewHTTPEmbedder(baseURL, apiKey, model string, timeout time.Duration, opts ...EmbedderOption) *HTTPEmbedder {
	e := &HTTPEmbedder{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed requests a single embedding vector for text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result embeddingResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal embedding response: %w", err)
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned no vector")
	}
	return result.Data[0].Embedding, nil
}
