package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/corpusqa/corpusqa/internal/core/domain"
)

// PipelineMetrics records per-query outcomes. Implementations must be
// cheap and non-blocking; a nil recorder disables instrumentation.
type PipelineMetrics interface {
	ObserveQuery(mode domain.AnswerMode, chunksUsed int, duration time.Duration)
	StageDegraded(stage string)
}

// QueryOrchestrator drives one question through the pipeline:
//
//	REWRITE -> RETRIEVE -> FETCH -> GATE -> COMPOSE -> DONE
//
// strictly forward, fresh state per call. Any stage failure degrades toward
// a GENERAL-mode response; Query never returns an error and never panics
// outward.
type QueryOrchestrator struct {
	rewriter  *QueryRewriter
	retriever *HybridRetriever
	gate      *AnswerabilityGate
	composer  *ResponseComposer
	metrics   PipelineMetrics
	logger    *slog.Logger
}

func NewQueryOrchestrator(
	rewriter *QueryRewriter,
	retriever *HybridRetriever,
	gate *AnswerabilityGate,
	composer *ResponseComposer,
	metrics PipelineMetrics,
	logger *slog.Logger,
) *QueryOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryOrchestrator{
		rewriter:  rewriter,
		retriever: retriever,
		gate:      gate,
		composer:  composer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Query answers one question against the given history. Summarization runs
// before rewriting when the history exceeds its cap, so every downstream
// stage sees a bounded history.
func (o *QueryOrchestrator) Query(ctx context.Context, question string, history []domain.HistoryTurn) (response domain.Response) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("query_pipeline_panic", "panic", r)
			response = ErrorResponse()
		}
		if o.metrics != nil {
			o.metrics.ObserveQuery(response.Mode, response.ChunksUsed, time.Since(start))
		}
	}()

	history = o.rewriter.Summarize(ctx, history)
	followup := IsFollowUp(question)

	rewritten := o.rewriter.Rewrite(ctx, question, history)
	result := o.retriever.Search(ctx, rewritten)

	var decision GateDecision
	candidates, err := o.gate.Fetch(ctx, result)
	if err != nil {
		o.logger.Warn("fetch_degraded", "error", err, "candidates", len(result))
		if o.metrics != nil {
			o.metrics.StageDegraded("fetch")
		}
		decision = GateDecision{Mode: domain.ModeGeneral}
	} else {
		decision = o.gate.Decide(ctx, rewritten, candidates, followup, history)
	}

	response = o.composer.Compose(ctx, question, decision, history)

	o.logger.Info("query_answered",
		"mode", response.Mode,
		"confidence", response.Confidence,
		"chunks_used", response.ChunksUsed,
		"followup", followup,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return response
}
