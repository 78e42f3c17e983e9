package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/internal/core/domain"
	"github.com/corpusqa/corpusqa/internal/infrastructure/resilience"
)

// Client implements the vector index port against Qdrant's HTTP API.
// Point ids are the chunk ids; the index stores cosine similarity, which
// Query converts to distance so nearer means smaller.
type Client struct {
	baseURL    string
	collection string
	timeout    time.Duration
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg config.QdrantConfig, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		collection: cfg.Collection,
		timeout:    cfg.Timeout(),
		httpClient: &http.Client{},
		executor:   executor,
	}
}

func (c *Client) Query(ctx context.Context, vector []float32, k int) ([]domain.VectorHit, error) {
	request := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": false,
	}

	var response struct {
		Result []struct {
			ID    string  `json:"id"`
			Score float64 `json:"score"`
		} `json:"result"`
	}
	err := c.execute(ctx, "qdrant_query", func(ctx context.Context) error {
		return c.postJSON(ctx, fmt.Sprintf("/collections/%s/points/search", c.collection), request, &response)
	})
	if err != nil {
		return nil, err
	}

	hits := make([]domain.VectorHit, 0, len(response.Result))
	for _, r := range response.Result {
		hits = append(hits, domain.VectorHit{
			ChunkID:  r.ID,
			Distance: 1 - r.Score,
		})
	}
	return hits, nil
}

// Vectors retrieves the stored embeddings for the given chunk ids. Ids the
// index does not know are simply absent from the result.
func (c *Client) Vectors(ctx context.Context, ids []string) (map[string][]float32, error) {
	if len(ids) == 0 {
		return map[string][]float32{}, nil
	}

	request := map[string]any{
		"ids":          ids,
		"with_vector":  true,
		"with_payload": false,
	}

	var response struct {
		Result []struct {
			ID     string    `json:"id"`
			Vector []float32 `json:"vector"`
		} `json:"result"`
	}
	err := c.execute(ctx, "qdrant_vectors", func(ctx context.Context) error {
		return c.postJSON(ctx, fmt.Sprintf("/collections/%s/points", c.collection), request, &response)
	})
	if err != nil {
		return nil, err
	}

	vectors := make(map[string][]float32, len(response.Result))
	for _, r := range response.Result {
		if len(r.Vector) > 0 {
			vectors[r.ID] = r.Vector
		}
	}
	return vectors, nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyQdrantError)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal qdrant request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	return nil
}
