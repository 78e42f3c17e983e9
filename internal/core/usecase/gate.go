package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/internal/core/domain"
	"github.com/corpusqa/corpusqa/internal/core/ports"
)

// vaguePatterns matches questions with no recoverable object: a bare
// interrogative, a bare pronoun, or a contentless "tell me" opener. These get
// a clarification request without consulting retrieval scores at all.
var vaguePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(what|how|why|when|where|who)[?.!\s]*$`),
	regexp.MustCompile(`^(it|this|that|these|those)[?.!\s]*$`),
	regexp.MustCompile(`^(tell me|more|go on|continue)[?.!\s]*$`),
}

const neutralRerankScore = 0.5

// GateDecision is the answerability outcome for one request.
type GateDecision struct {
	Mode     domain.AnswerMode
	Chunks   []domain.ChunkCandidate
	TopScore float64
	// Hint carries the most recent user turn when Mode is ModeClarify, so
	// the composer can reference what the clarification should anchor on.
	Hint string
}

// AnswerabilityGate fetches and sanitizes candidate chunks, applies optional
// neural reranking, and decides the answer mode. The gate is deliberately
// lenient toward using retrieved material: abstention is the conservative
// fallback, not the default.
type AnswerabilityGate struct {
	chunks    ports.ChunkStore
	reranker  ports.Reranker
	sanitizer ports.Sanitizer
	cfg       config.GateConfig
	rerankCfg config.RerankConfig
	logger    *slog.Logger
}

func NewAnswerabilityGate(
	chunks ports.ChunkStore,
	reranker ports.Reranker,
	sanitizer ports.Sanitizer,
	cfg config.GateConfig,
	rerankCfg config.RerankConfig,
	logger *slog.Logger,
) *AnswerabilityGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerabilityGate{
		chunks:    chunks,
		reranker:  reranker,
		sanitizer: sanitizer,
		cfg:       cfg,
		rerankCfg: rerankCfg,
		logger:    logger,
	}
}

// Fetch resolves the top candidates into full chunk records with citation
// metadata, pre-sanitizing text before any scoring. Unknown ids are skipped;
// a store failure is returned for the orchestrator to degrade on.
func (g *AnswerabilityGate) Fetch(ctx context.Context, result domain.RetrievalResult) ([]domain.ChunkCandidate, error) {
	limit := g.cfg.FetchLimit
	if limit > len(result) {
		limit = len(result)
	}

	out := make([]domain.ChunkCandidate, 0, limit)
	for _, scored := range result[:limit] {
		chunk, err := g.chunks.GetChunk(ctx, scored.ChunkID)
		if err != nil {
			if domain.IsKind(err, domain.ErrChunkNotFound) {
				continue
			}
			return nil, domain.WrapError(domain.ErrRetrieval, "fetch chunk", err)
		}

		candidate := domain.ChunkCandidate{
			ID:          chunk.ID,
			Text:        g.sanitizer.Scrub(chunk.Text),
			SectionPath: chunk.SectionPath,
			FusedScore:  scored.Score,
		}
		if citation, err := g.chunks.GetCitation(ctx, scored.ChunkID); err == nil && citation != nil {
			candidate.Citation = *citation
		}
		out = append(out, candidate)
	}
	return out, nil
}

// Decide picks the answer mode for the request. followup relaxes the abstain
// threshold, since follow-ups often carry less standalone lexical signal.
func (g *AnswerabilityGate) Decide(ctx context.Context, question string, chunks []domain.ChunkCandidate, followup bool, history []domain.HistoryTurn) GateDecision {
	if isVagueQuestion(question) {
		return GateDecision{
			Mode: domain.ModeClarify,
			Hint: domain.LastUserTurn(history),
		}
	}

	if len(chunks) == 0 {
		return GateDecision{Mode: g.lowConfidenceMode()}
	}

	if g.reranker == nil {
		// Lenient path: no second-pass scorer configured, trust the fused
		// ranking and answer from the top of it.
		final := chunks
		if len(final) > g.rerankCfg.TopN {
			final = final[:g.rerankCfg.TopN]
		}
		return GateDecision{
			Mode:     domain.ModeDocGrounded,
			Chunks:   final,
			TopScore: final[0].FusedScore,
		}
	}

	reranked := g.rerank(ctx, question, chunks)

	threshold := g.rerankCfg.MinScore
	if followup {
		threshold *= g.cfg.FollowupLeniency
	}

	topScore := *reranked[0].RerankScore
	if topScore < threshold || len(reranked) < g.cfg.MinChunks {
		return GateDecision{Mode: g.lowConfidenceMode(), TopScore: topScore}
	}

	final := reranked
	if len(final) > g.rerankCfg.TopN {
		final = final[:g.rerankCfg.TopN]
	}
	return GateDecision{
		Mode:     domain.ModeDocGrounded,
		Chunks:   final,
		TopScore: topScore,
	}
}

// rerank scores every (question, chunk) pair and sorts descending, ties by
// ascending id. A rerank failure assigns a neutral default score per chunk
// instead of failing the request.
func (g *AnswerabilityGate) rerank(ctx context.Context, question string, chunks []domain.ChunkCandidate) []domain.ChunkCandidate {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	scores, err := g.reranker.Score(ctx, question, texts)
	if err != nil || len(scores) != len(chunks) {
		if err != nil {
			g.logger.Warn("rerank_fallback", "error", err)
		}
		scores = make([]float64, len(chunks))
		for i := range scores {
			scores[i] = neutralRerankScore
		}
	}

	out := make([]domain.ChunkCandidate, len(chunks))
	copy(out, chunks)
	for i := range out {
		score := scores[i]
		out[i].RerankScore = &score
	}

	sort.SliceStable(out, func(i, j int) bool {
		if *out[i].RerankScore != *out[j].RerankScore {
			return *out[i].RerankScore > *out[j].RerankScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (g *AnswerabilityGate) lowConfidenceMode() domain.AnswerMode {
	if g.cfg.LowConfidenceMode == config.LowConfidenceAbstain {
		return domain.ModeAbstain
	}
	return domain.ModeGeneral
}

func isVagueQuestion(question string) bool {
	lowered := strings.ToLower(strings.TrimSpace(question))
	for _, pattern := range vaguePatterns {
		if pattern.MatchString(lowered) {
			return true
		}
	}
	return false
}
