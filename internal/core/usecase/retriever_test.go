package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/internal/core/domain"
)

type retrieverVectorFake struct {
	k       int
	hits    []domain.VectorHit
	vectors map[string][]float32
	err     error
}

func (f *retrieverVectorFake) Query(_ context.Context, _ []float32, k int) ([]domain.VectorHit, error) {
	f.k = k
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *retrieverVectorFake) Vectors(context.Context, []string) (map[string][]float32, error) {
	if f.vectors == nil {
		return nil, errors.New("vectors unavailable")
	}
	return f.vectors, nil
}

func TestSanitizeLexicalQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"How do retries back-off?", "how OR do OR retries OR back OR off"},
		{"a b CD", "cd"},
		{"???", ""},
		{"  ", ""},
	}
	for _, tc := range cases {
		if got := SanitizeLexicalQuery(tc.in); got != tc.want {
			t.Fatalf("SanitizeLexicalQuery(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSearchShortQueryWidensBreadth(t *testing.T) {
	cfg := config.Default().Retrieval
	vector := &retrieverVectorFake{hits: []domain.VectorHit{{ChunkID: "a", Distance: 0.2}}}
	r := NewHybridRetriever(&orchEmbedderFake{}, vector, &orchLexicalFake{}, cfg, nil)

	r.Search(context.Background(), "api gateway")
	if vector.k != cfg.CandidatesShort {
		t.Fatalf("expected short-query breadth %d, got %d", cfg.CandidatesShort, vector.k)
	}

	r.Search(context.Background(), "how does the api gateway route requests")
	if vector.k != cfg.CandidatesLong {
		t.Fatalf("expected long-query breadth %d, got %d", cfg.CandidatesLong, vector.k)
	}
}

func TestSearchDenseOnlyWhenLexicalFails(t *testing.T) {
	cfg := config.Default().Retrieval
	vector := &retrieverVectorFake{hits: []domain.VectorHit{
		{ChunkID: "a", Distance: 0.1},
		{ChunkID: "b", Distance: 0.4},
	}}
	lexical := &orchLexicalFake{searchErr: errors.New("syntax error")}
	r := NewHybridRetriever(&orchEmbedderFake{}, vector, lexical, cfg, nil)

	result := r.Search(context.Background(), "api gateway routing")
	if len(result) != 2 {
		t.Fatalf("expected dense-only result, got %d", len(result))
	}
	if result[0].ChunkID != "a" {
		t.Fatalf("expected nearest chunk first, got %s", result[0].ChunkID)
	}
}

func TestSearchLexicalOnlyWhenEmbeddingFails(t *testing.T) {
	cfg := config.Default().Retrieval
	lexical := &orchLexicalFake{hits: []domain.LexicalHit{
		{ChunkID: "x", Score: 3.0},
		{ChunkID: "y", Score: 1.0},
	}}
	r := NewHybridRetriever(&orchEmbedderFake{err: errors.New("embed down")}, &retrieverVectorFake{}, lexical, cfg, nil)

	result := r.Search(context.Background(), "api gateway routing")
	if len(result) != 2 {
		t.Fatalf("expected lexical-only result, got %d", len(result))
	}
	if result[0].ChunkID != "x" {
		t.Fatalf("expected best lexical hit first, got %s", result[0].ChunkID)
	}
}

func TestSearchMMRDemotesDuplicate(t *testing.T) {
	// b is an exact vector duplicate of the top hit a; c is orthogonal with a
	// lower raw score. The diversity stage must rank c above b.
	hits := []domain.VectorHit{
		{ChunkID: "a", Distance: 0.1},
		{ChunkID: "b", Distance: 0.11},
		{ChunkID: "c", Distance: 0.5},
	}
	vectors := map[string][]float32{
		"a": {1, 0},
		"b": {1, 0},
		"c": {0, 1},
	}

	cfg := config.Default().Retrieval
	r := NewHybridRetriever(&orchEmbedderFake{}, &retrieverVectorFake{hits: hits, vectors: vectors}, &orchLexicalFake{}, cfg, nil)

	result := r.Search(context.Background(), "api gateway routing")
	ids := result.IDs()
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "c" || ids[2] != "b" {
		t.Fatalf("expected duplicate demoted to [a c b], got %v", ids)
	}

	cfg.MMREnabled = false
	raw := NewHybridRetriever(&orchEmbedderFake{}, &retrieverVectorFake{hits: hits, vectors: vectors}, &orchLexicalFake{}, cfg, nil)
	rawIDs := raw.Search(context.Background(), "api gateway routing").IDs()
	if rawIDs[1] != "b" {
		t.Fatalf("expected raw similarity order [a b c] without diversity, got %v", rawIDs)
	}
}

func TestSearchValidQueryZeroHitsSkipsSubstringFallback(t *testing.T) {
	// A well-formed query that matches nothing is an intentionally empty
	// lexical signal, not a reason to substitute containment matches.
	cfg := config.Default().Retrieval
	lexical := &orchLexicalFake{}
	vector := &retrieverVectorFake{hits: []domain.VectorHit{{ChunkID: "a", Distance: 0.2}}}
	r := NewHybridRetriever(&orchEmbedderFake{}, vector, lexical, cfg, nil)

	result := r.Search(context.Background(), "api gateway routing")
	if lexical.substringTerm != "" {
		t.Fatalf("expected no substring fallback for a zero-hit query, got %q", lexical.substringTerm)
	}
	if len(result) != 1 || result[0].ChunkID != "a" {
		t.Fatalf("expected dense-only result, got %v", result)
	}
}

func TestSearchVectorsFailureKeepsDenseOrder(t *testing.T) {
	// Vectors() fails, so MMR degrades to the raw similarity ranking.
	cfg := config.Default().Retrieval
	vector := &retrieverVectorFake{hits: []domain.VectorHit{
		{ChunkID: "a", Distance: 0.1},
		{ChunkID: "b", Distance: 0.2},
	}}
	r := NewHybridRetriever(&orchEmbedderFake{}, vector, &orchLexicalFake{}, cfg, nil)

	result := r.Search(context.Background(), "api gateway routing")
	if len(result) != 2 || result[0].ChunkID != "a" {
		t.Fatalf("expected degraded dense order, got %v", result)
	}
}
