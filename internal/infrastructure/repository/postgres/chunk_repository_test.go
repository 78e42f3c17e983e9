package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/corpusqa/corpusqa/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*ChunkRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ChunkRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetChunkReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, text, section_path").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetChunk(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrChunkNotFound) {
		t.Fatalf("expected ErrChunkNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetChunkScansRecord(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "text", "section_path"}).
		AddRow("chunk-1", "body text", "Guide > Retries")
	mock.ExpectQuery("SELECT id, text, section_path").
		WithArgs("chunk-1").
		WillReturnRows(rows)

	chunk, err := repo.GetChunk(context.Background(), "chunk-1")
	if err != nil {
		t.Fatalf("GetChunk() error = %v", err)
	}
	if chunk.Text != "body text" || chunk.SectionPath != "Guide > Retries" {
		t.Fatalf("unexpected chunk %+v", chunk)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetCitationJoinsDocument(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"title", "file"}).
		AddRow("Retry Guide", "guides/retries.md")
	mock.ExpectQuery("SELECT d.title, d.file").
		WithArgs("chunk-1").
		WillReturnRows(rows)

	citation, err := repo.GetCitation(context.Background(), "chunk-1")
	if err != nil {
		t.Fatalf("GetCitation() error = %v", err)
	}
	if citation.Title != "Retry Guide" || citation.File != "guides/retries.md" {
		t.Fatalf("unexpected citation %+v", citation)
	}
}

func TestSearchReturnsRankedHits(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "rank"}).
		AddRow("chunk-2", 0.8).
		AddRow("chunk-1", 0.3)
	mock.ExpectQuery("websearch_to_tsquery").
		WithArgs("retries OR backoff", 50).
		WillReturnRows(rows)

	hits, err := repo.Search(context.Background(), "retries OR backoff", 50)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 || hits[0].ChunkID != "chunk-2" || hits[0].Score != 0.8 {
		t.Fatalf("unexpected hits %v", hits)
	}
}

func TestSearchSyntaxErrorPropagates(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("websearch_to_tsquery").
		WithArgs("bad !! query", 50).
		WillReturnError(errors.New("syntax error in tsquery"))

	_, err := repo.Search(context.Background(), "bad !! query", 50)
	if err == nil {
		t.Fatalf("expected syntax error to propagate for fallback handling")
	}
}

func TestSearchSubstringUsesILIKE(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "rank"}).
		AddRow("chunk-7", 1.0)
	mock.ExpectQuery("ILIKE").
		WithArgs("C++", 50).
		WillReturnRows(rows)

	hits, err := repo.SearchSubstring(context.Background(), "C++", 50)
	if err != nil {
		t.Fatalf("SearchSubstring() error = %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "chunk-7" {
		t.Fatalf("unexpected hits %v", hits)
	}
}
