package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/internal/core/domain"
)

type gateChunkStoreFake struct {
	chunks map[string]*domain.StoredChunk
	err    error
}

func (f *gateChunkStoreFake) GetChunk(_ context.Context, id string) (*domain.StoredChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	chunk, ok := f.chunks[id]
	if !ok {
		return nil, domain.ErrChunkNotFound
	}
	return chunk, nil
}

func (f *gateChunkStoreFake) GetCitation(_ context.Context, id string) (*domain.ChunkCitation, error) {
	if _, ok := f.chunks[id]; !ok {
		return nil, domain.ErrChunkNotFound
	}
	return &domain.ChunkCitation{Title: "Doc " + id, File: id + ".md"}, nil
}

type gateRerankerFake struct {
	scores []float64
	err    error
	calls  int
}

func (f *gateRerankerFake) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.scores != nil {
		return f.scores, nil
	}
	out := make([]float64, len(texts))
	for i := range out {
		out[i] = 0.9
	}
	return out, nil
}

type gateSanitizerFake struct{}

func (gateSanitizerFake) Scrub(text string) string {
	return strings.ReplaceAll(text, "secret", "[REDACTED]")
}

func gateConfig() config.GateConfig {
	return config.GateConfig{
		FetchLimit:        40,
		MinChunks:         1,
		FollowupLeniency:  0.7,
		LowConfidenceMode: config.LowConfidenceGeneral,
	}
}

func rerankConfig() config.RerankConfig {
	return config.RerankConfig{MinScore: 0.3, TopN: 8}
}

func storeWith(ids ...string) *gateChunkStoreFake {
	chunks := make(map[string]*domain.StoredChunk, len(ids))
	for _, id := range ids {
		chunks[id] = &domain.StoredChunk{ID: id, Text: "text " + id, SectionPath: "Guide > " + id}
	}
	return &gateChunkStoreFake{chunks: chunks}
}

func TestFetchSkipsUnknownIDsAndScrubs(t *testing.T) {
	store := storeWith("a", "b")
	store.chunks["a"].Text = "the secret token"
	g := NewAnswerabilityGate(store, nil, gateSanitizerFake{}, gateConfig(), rerankConfig(), nil)

	result := domain.RetrievalResult{
		{ChunkID: "a", Score: 0.9},
		{ChunkID: "missing", Score: 0.8},
		{ChunkID: "b", Score: 0.7},
	}

	chunks, err := g.Fetch(context.Background(), result)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 fetched chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "the [REDACTED] token" {
		t.Fatalf("expected scrubbed text, got %q", chunks[0].Text)
	}
	if chunks[0].Citation.Title != "Doc a" {
		t.Fatalf("expected citation attached, got %+v", chunks[0].Citation)
	}
}

func TestFetchStoreErrorSurfaces(t *testing.T) {
	store := &gateChunkStoreFake{err: errors.New("connection refused")}
	g := NewAnswerabilityGate(store, nil, gateSanitizerFake{}, gateConfig(), rerankConfig(), nil)

	_, err := g.Fetch(context.Background(), domain.RetrievalResult{{ChunkID: "a", Score: 0.9}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("expected retrieval kind, got %v", err)
	}
}

func TestDecideVagueQuestionClarifies(t *testing.T) {
	g := NewAnswerabilityGate(storeWith("a"), &gateRerankerFake{}, gateSanitizerFake{}, gateConfig(), rerankConfig(), nil)
	history := []domain.HistoryTurn{{Role: domain.RoleUser, Text: "Explain the deployment pipeline"}}

	decision := g.Decide(context.Background(), "what?", chunkCandidates("a"), false, history)
	if decision.Mode != domain.ModeClarify {
		t.Fatalf("expected CLARIFY, got %s", decision.Mode)
	}
	if decision.Hint != "Explain the deployment pipeline" {
		t.Fatalf("expected hint from last user turn, got %q", decision.Hint)
	}
}

func TestDecideEmptyCandidatesGeneral(t *testing.T) {
	g := NewAnswerabilityGate(storeWith(), &gateRerankerFake{}, gateSanitizerFake{}, gateConfig(), rerankConfig(), nil)

	decision := g.Decide(context.Background(), "how do retries work", nil, false, nil)
	if decision.Mode != domain.ModeGeneral {
		t.Fatalf("expected GENERAL, got %s", decision.Mode)
	}
}

func TestDecideBelowThresholdAbstains(t *testing.T) {
	cfg := gateConfig()
	cfg.LowConfidenceMode = config.LowConfidenceAbstain
	reranker := &gateRerankerFake{scores: []float64{0.1, 0.05}}
	g := NewAnswerabilityGate(storeWith(), reranker, gateSanitizerFake{}, cfg, rerankConfig(), nil)

	decision := g.Decide(context.Background(), "how do retries work", chunkCandidates("a", "b"), false, nil)
	if decision.Mode != domain.ModeAbstain {
		t.Fatalf("expected ABSTAIN, got %s", decision.Mode)
	}
	if len(decision.Chunks) != 0 {
		t.Fatalf("expected no chunks on abstain, got %d", len(decision.Chunks))
	}
}

func TestDecideFollowupLeniencyPasses(t *testing.T) {
	// 0.25 fails the 0.3 threshold but passes 0.3*0.7=0.21.
	reranker := &gateRerankerFake{scores: []float64{0.25, 0.1}}
	g := NewAnswerabilityGate(storeWith(), reranker, gateSanitizerFake{}, gateConfig(), rerankConfig(), nil)
	candidates := chunkCandidates("a", "b")

	strict := g.Decide(context.Background(), "how do retries work", candidates, false, nil)
	if strict.Mode != domain.ModeGeneral {
		t.Fatalf("expected GENERAL without leniency, got %s", strict.Mode)
	}

	reranker.scores = []float64{0.25, 0.1}
	lenient := g.Decide(context.Background(), "how do retries work", candidates, true, nil)
	if lenient.Mode != domain.ModeDocGrounded {
		t.Fatalf("expected DOC_GROUNDED with followup leniency, got %s", lenient.Mode)
	}
}

func TestDecideRerankFailureNeutralScores(t *testing.T) {
	reranker := &gateRerankerFake{err: errors.New("rerank down")}
	g := NewAnswerabilityGate(storeWith(), reranker, gateSanitizerFake{}, gateConfig(), rerankConfig(), nil)

	decision := g.Decide(context.Background(), "how do retries work", chunkCandidates("b", "a"), false, nil)
	if decision.Mode != domain.ModeDocGrounded {
		t.Fatalf("expected DOC_GROUNDED with neutral scores, got %s", decision.Mode)
	}
	if decision.TopScore != neutralRerankScore {
		t.Fatalf("expected neutral top score, got %v", decision.TopScore)
	}
	// Neutral scores tie, so ordering falls back to ascending id.
	if decision.Chunks[0].ID != "a" {
		t.Fatalf("expected tie-break by id, got %s first", decision.Chunks[0].ID)
	}
}

func TestDecideTopNCap(t *testing.T) {
	rerankCfg := rerankConfig()
	rerankCfg.TopN = 2
	g := NewAnswerabilityGate(storeWith(), &gateRerankerFake{}, gateSanitizerFake{}, gateConfig(), rerankCfg, nil)

	decision := g.Decide(context.Background(), "how do retries work", chunkCandidates("a", "b", "c", "d"), false, nil)
	if len(decision.Chunks) != 2 {
		t.Fatalf("expected top-2 chunks, got %d", len(decision.Chunks))
	}
}

func TestDecideNoRerankerLenientPath(t *testing.T) {
	g := NewAnswerabilityGate(storeWith(), nil, gateSanitizerFake{}, gateConfig(), rerankConfig(), nil)
	candidates := chunkCandidates("a", "b")
	candidates[0].FusedScore = 0.033

	decision := g.Decide(context.Background(), "how do retries work", candidates, false, nil)
	if decision.Mode != domain.ModeDocGrounded {
		t.Fatalf("expected lenient DOC_GROUNDED, got %s", decision.Mode)
	}
	if decision.TopScore != 0.033 {
		t.Fatalf("expected fused top score, got %v", decision.TopScore)
	}
}

func chunkCandidates(ids ...string) []domain.ChunkCandidate {
	out := make([]domain.ChunkCandidate, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.ChunkCandidate{
			ID:          id,
			Text:        "text " + id,
			SectionPath: "Guide > " + id,
			Citation:    domain.ChunkCitation{Title: "Doc " + id, File: id + ".md"},
			FusedScore:  1.0 - float64(i)*0.1,
		})
	}
	return out
}
