package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/internal/core/domain"
	"github.com/corpusqa/corpusqa/internal/core/ports"
)

// HybridRetriever fuses dense nearest-neighbor search and lexical keyword
// search into one deterministic ranking. Every stage degrades to the best
// still-working signal; total failure returns an empty result, never an
// error.
type HybridRetriever struct {
	embedder ports.Embedder
	vectors  ports.VectorIndex
	lexical  ports.LexicalIndex
	cfg      config.RetrievalConfig
	logger   *slog.Logger
}

func NewHybridRetriever(
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	lexical ports.LexicalIndex,
	cfg config.RetrievalConfig,
	logger *slog.Logger,
) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		embedder: embedder,
		vectors:  vectors,
		lexical:  lexical,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search runs the dense and lexical stages in parallel, applies MMR
// diversity to the dense pool, and fuses the two rankings.
func (r *HybridRetriever) Search(ctx context.Context, query string) domain.RetrievalResult {
	k := r.candidateBreadth(query)

	var (
		wg          sync.WaitGroup
		denseScores map[string]float64
		lexScores   map[string]float64
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		denseScores = r.denseStage(ctx, query, k)
	}()
	go func() {
		defer wg.Done()
		lexScores = r.lexicalStage(ctx, query)
	}()
	wg.Wait()

	if len(denseScores) == 0 && len(lexScores) == 0 {
		return domain.RetrievalResult{}
	}
	if len(lexScores) == 0 {
		return toRetrievalResult(denseScores)
	}
	if len(denseScores) == 0 {
		return toRetrievalResult(lexScores)
	}

	var fused map[string]float64
	if r.cfg.Fusion == config.FusionWeighted {
		fused = fuseWeighted(denseScores, lexScores, r.cfg.DenseWeight, r.cfg.LexicalWeight)
	} else {
		fused = fuseRRF(denseScores, lexScores, r.cfg.RRFK)
	}
	return toRetrievalResult(fused)
}

// candidateBreadth widens the pool for short queries, which are more
// ambiguous and benefit from broader recall.
func (r *HybridRetriever) candidateBreadth(query string) int {
	if len(strings.Fields(query)) <= r.cfg.ShortQueryTokens {
		return r.cfg.CandidatesShort
	}
	return r.cfg.CandidatesLong
}

// denseStage embeds the query, queries the vector index, converts cosine
// distance to similarity, and applies MMR re-selection. Vector retrieval
// failure for MMR degrades to the raw dense similarity order.
func (r *HybridRetriever) denseStage(ctx context.Context, query string, k int) map[string]float64 {
	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.logger.Warn("dense_stage_degraded", "stage", "embed", "error", err)
		return nil
	}

	hits, err := r.vectors.Query(ctx, queryVector, k)
	if err != nil {
		r.logger.Warn("dense_stage_degraded", "stage", "vector_query", "error", err)
		return nil
	}

	similarity := make(map[string]float64, len(hits))
	for _, hit := range hits {
		similarity[hit.ChunkID] = 1 - hit.Distance
	}
	if len(similarity) == 0 {
		return nil
	}

	if !r.cfg.MMREnabled {
		return similarity
	}

	candidateVectors, err := r.vectors.Vectors(ctx, rankDescending(similarity))
	if err != nil {
		r.logger.Warn("mmr_degraded", "error", err)
		return similarity
	}

	selected := maximalMarginalRelevance(similarity, candidateVectors, r.cfg.MMRLambda, k)

	// Reassign the similarity values in selection order, so the ranking the
	// fusion stage sees is the diversity order: a near-duplicate of the top
	// hit drops behind the diverse picks instead of riding its raw score.
	ordered := make([]float64, 0, len(selected))
	for _, id := range selected {
		ordered = append(ordered, similarity[id])
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ordered)))

	diversified := make(map[string]float64, len(selected))
	for i, id := range selected {
		diversified[id] = ordered[i]
	}
	return diversified
}

// lexicalStage sanitizes the query for the full-text grammar and runs it;
// an empty sanitized query or an index rejection falls back to substring
// containment over chunk text. Scores are min-max normalized to [0,1].
func (r *HybridRetriever) lexicalStage(ctx context.Context, query string) map[string]float64 {
	var hits []domain.LexicalHit

	// The containment fallback fires only when the full-text grammar cannot
	// be used at all: an empty sanitized query or an index rejection. A valid
	// query that matches nothing is an intentionally empty lexical signal.
	sanitized := SanitizeLexicalQuery(query)
	useFallback := sanitized == ""
	if sanitized != "" {
		var err error
		hits, err = r.lexical.Search(ctx, sanitized, r.cfg.LexicalLimit)
		if err != nil {
			r.logger.Warn("lexical_stage_degraded", "stage", "fts", "error", err)
			hits = nil
			useFallback = true
		}
	}

	if useFallback {
		term := strings.TrimSpace(query)
		if term == "" {
			return nil
		}
		fallback, err := r.lexical.SearchSubstring(ctx, term, r.cfg.LexicalLimit)
		if err != nil {
			r.logger.Warn("lexical_stage_degraded", "stage", "substring", "error", err)
			return nil
		}
		hits = fallback
	}

	return normalizeLexicalScores(hits)
}

// SanitizeLexicalQuery strips punctuation the full-text grammar does not
// accept, collapses whitespace, drops single-character tokens, and joins the
// remaining terms with OR to favor recall over precision.
func SanitizeLexicalQuery(query string) string {
	var b strings.Builder
	for _, r := range query {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteByte(' ')
		}
	}

	terms := make([]string, 0, 8)
	for _, tok := range strings.Fields(b.String()) {
		if len(tok) < 2 {
			continue
		}
		terms = append(terms, tok)
	}
	return strings.Join(terms, " OR ")
}
