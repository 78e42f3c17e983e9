package usecase

import (
	"sort"

	"github.com/corpusqa/corpusqa/internal/core/domain"
)

// normalizeLexicalScores maps raw lexical scores into [0,1] via min-max.
// When every score is equal there is no spread to preserve, so all map to 1.
func normalizeLexicalScores(hits []domain.LexicalHit) map[string]float64 {
	if len(hits) == 0 {
		return map[string]float64{}
	}

	minScore := hits[0].Score
	maxScore := hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < minScore {
			minScore = h.Score
		}
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}

	normalized := make(map[string]float64, len(hits))
	if maxScore == minScore {
		for _, h := range hits {
			normalized[h.ChunkID] = 1.0
		}
		return normalized
	}
	for _, h := range hits {
		normalized[h.ChunkID] = (h.Score - minScore) / (maxScore - minScore)
	}
	return normalized
}

// fuseRRF combines the dense and lexical rankings with Reciprocal Rank
// Fusion: each chunk accumulates 1/(k+rank) from every list it appears in.
// Rank-based fusion is robust to the differing score scales of the two
// signals.
func fuseRRF(dense, lexical map[string]float64, k int) map[string]float64 {
	if k <= 0 {
		k = 60
	}

	combined := make(map[string]float64, len(dense)+len(lexical))
	for rank, id := range rankDescending(dense) {
		combined[id] += 1.0 / float64(k+rank+1)
	}
	for rank, id := range rankDescending(lexical) {
		combined[id] += 1.0 / float64(k+rank+1)
	}
	return combined
}

// fuseWeighted combines the two score maps by magnitude with fixed weights.
func fuseWeighted(dense, lexical map[string]float64, denseWeight, lexicalWeight float64) map[string]float64 {
	combined := make(map[string]float64, len(dense)+len(lexical))
	for id, score := range dense {
		combined[id] += denseWeight * score
	}
	for id, score := range lexical {
		combined[id] += lexicalWeight * score
	}
	return combined
}

// rankDescending orders chunk ids by score descending, ties by ascending id
// so ranking is deterministic for fixed inputs.
func rankDescending(scores map[string]float64) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// toRetrievalResult turns a fused score map into the ordered result contract:
// descending score, ties broken by ascending chunk id.
func toRetrievalResult(scores map[string]float64) domain.RetrievalResult {
	out := make(domain.RetrievalResult, 0, len(scores))
	for _, id := range rankDescending(scores) {
		out = append(out, domain.ScoredChunk{ChunkID: id, Score: scores[id]})
	}
	return out
}
