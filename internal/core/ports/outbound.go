package ports

import (
	"context"

	"github.com/corpusqa/corpusqa/internal/core/domain"
)

// Embedder builds unit-normalized vectors for query and chunk text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex performs nearest-neighbor search over chunk embeddings.
// Query returns hits in ascending cosine-distance order. Vectors retrieves
// the stored embeddings for the given chunk ids (used for MMR diversity);
// ids without a stored vector are absent from the result map.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, k int) ([]domain.VectorHit, error)
	Vectors(ctx context.Context, ids []string) (map[string][]float32, error)
}

// LexicalIndex performs keyword search over chunk text. Search ranks by the
// index's native relevance score, descending, and may reject malformed query
// syntax. SearchSubstring is the containment fallback used when the sanitized
// query is empty or rejected.
type LexicalIndex interface {
	Search(ctx context.Context, query string, limit int) ([]domain.LexicalHit, error)
	SearchSubstring(ctx context.Context, term string, limit int) ([]domain.LexicalHit, error)
}

// Reranker scores (query, text) pairs; higher means more relevant.
// Scores are returned in input order.
type Reranker interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Generator is the text-generation service. One blocking call with a
// bounded timeout supplied through ctx.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ChunkStore resolves chunk ids to text and citation metadata.
// GetChunk returns domain.ErrChunkNotFound for unknown ids.
type ChunkStore interface {
	GetChunk(ctx context.Context, id string) (*domain.StoredChunk, error)
	GetCitation(ctx context.Context, id string) (*domain.ChunkCitation, error)
}

// Sanitizer replaces recognized sensitive patterns with a redaction marker.
type Sanitizer interface {
	Scrub(text string) string
}

// SessionStore owns per-session conversation history. Do runs fn while
// holding the session's lock, so concurrent requests on the same session
// never interleave reads and appends; fn receives the current history and
// returns the replacement history to persist. Unknown ids are created on
// demand.
type SessionStore interface {
	Create() string
	Do(sessionID string, fn func(history []domain.HistoryTurn) []domain.HistoryTurn)
	Clear(sessionID string)
	Len() int
}

// EventPublisher emits answered-query events for offline analysis.
type EventPublisher interface {
	PublishQueryAnswered(ctx context.Context, event domain.QueryEvent) error
}
