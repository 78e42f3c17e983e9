package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/internal/infrastructure/resilience"
)

// Client talks to one Ollama instance for both embedding and generation.
// Per-call timeouts come from configuration; the shared http.Client carries
// no timeout of its own so generation can run long.
type Client struct {
	baseURL         string
	genModel        string
	embedModel      string
	embedTimeout    time.Duration
	generateTimeout time.Duration
	httpClient      *http.Client
	executor        *resilience.Executor
}

func New(cfg config.OllamaConfig, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:         strings.TrimRight(cfg.URL, "/"),
		genModel:        cfg.GenModel,
		embedModel:      cfg.EmbedModel,
		embedTimeout:    cfg.EmbedTimeout(),
		generateTimeout: cfg.GenerateTimeout(),
		httpClient:      &http.Client{},
		executor:        executor,
	}
}

// Embedder adapts the client to the embedding port.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.execute(ctx, "ollama_embed", e.client.embedTimeout, func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed count mismatch: want %d, got %d", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Generator adapts the client to the generation port.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	request := map[string]any{
		"model":  g.client.genModel,
		"system": systemPrompt,
		"prompt": userPrompt,
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	err := g.client.execute(ctx, "ollama_generate", g.client.generateTimeout, func(ctx context.Context) error {
		return g.client.postJSON(ctx, "/api/generate", request, &response, "generate")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) execute(ctx context.Context, operation string, timeout time.Duration, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if c.executor == nil {
		return wrapTemporaryIfNeeded(operation, fn(ctx))
	}
	err := c.executor.Execute(ctx, operation, fn, classifyOllamaError)
	return wrapTemporaryIfNeeded(operation, err)
}
