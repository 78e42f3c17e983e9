package rerank

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
)

// Client scores (query, text) pairs against a TEI-style cross-encoder
// /rerank endpoint. Scores come back in input order regardless of the
// ranking the service returns.
type Client struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

func New(cfg config.RerankConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		model:      cfg.Model,
		timeout:    cfg.Timeout(),
		httpClient: &http.Client{},
	}
}

func (c *Client) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	request := map[string]any{
		"model": c.model,
		"query": query,
		"texts": texts,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRerank, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, domain.WrapError(domain.ErrRerank, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRerank, "rerank request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, domain.WrapError(domain.ErrRerank, "rerank request",
			fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, domain.WrapError(domain.ErrRerank, "decode response", err)
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, domain.WrapError(domain.ErrRerank, "map scores",
				fmt.Errorf("index %d out of range for %d texts", r.Index, len(texts)))
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, domain.WrapError(domain.ErrRerank, "map scores",
				fmt.Errorf("missing score for text %d", i))
		}
	}
	return scores, nil
}
