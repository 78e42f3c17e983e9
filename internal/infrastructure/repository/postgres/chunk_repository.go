package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/corpusqa/corpusqa/internal/core/domain"
)

// ChunkRepository resolves chunk ids and serves lexical search over chunk
// text with Postgres full-text search. The chunks table is written by the
// offline indexing pipeline; this service only reads it.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

func (r *ChunkRepository) GetChunk(ctx context.Context, id string) (*domain.StoredChunk, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, text, section_path
FROM chunks
WHERE id = $1
`, id)

	var chunk domain.StoredChunk
	if err := row.Scan(&chunk.ID, &chunk.Text, &chunk.SectionPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChunkNotFound, "get chunk", err)
		}
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	return &chunk, nil
}

func (r *ChunkRepository) GetCitation(ctx context.Context, id string) (*domain.ChunkCitation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT d.title, d.file
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.id = $1
`, id)

	var citation domain.ChunkCitation
	if err := row.Scan(&citation.Title, &citation.File); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChunkNotFound, "get citation", err)
		}
		return nil, fmt.Errorf("get citation: %w", err)
	}
	return &citation, nil
}

// Search runs the sanitized OR-query through websearch full-text matching,
// ranked by ts_rank descending. Postgres rejects malformed tsquery syntax
// with an error, which the retriever treats as a fallback signal.
func (r *ChunkRepository) Search(ctx context.Context, query string, limit int) ([]domain.LexicalHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, ts_rank(text_tsv, websearch_to_tsquery('english', $1)) AS rank
FROM chunks
WHERE text_tsv @@ websearch_to_tsquery('english', $1)
ORDER BY rank DESC, id ASC
LIMIT $2
`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	return scanHits(rows)
}

// SearchSubstring is the containment fallback for queries the full-text
// grammar cannot express. All hits share one score; the fusion layer
// normalizes them to 1.0.
func (r *ChunkRepository) SearchSubstring(ctx context.Context, term string, limit int) ([]domain.LexicalHit, error) {
	if limit <= 0 || term == "" {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, 1.0 AS rank
FROM chunks
WHERE text ILIKE '%' || $1 || '%'
ORDER BY id ASC
LIMIT $2
`, term, limit)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	defer rows.Close()

	return scanHits(rows)
}

func scanHits(rows *sql.Rows) ([]domain.LexicalHit, error) {
	var out []domain.LexicalHit
	for rows.Next() {
		var hit domain.LexicalHit
		if err := rows.Scan(&hit.ChunkID, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan lexical hit: %w", err)
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lexical hits: %w", err)
	}
	return out, nil
}
