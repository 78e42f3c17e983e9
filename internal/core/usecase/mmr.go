package usecase

// maximalMarginalRelevance greedily selects up to k candidates trading raw
// query relevance against redundancy with what is already chosen:
//
//	argmax  lambda*sim(query, c) - (1-lambda)*max sim(c, chosen)
//
// The first pick is always the highest raw similarity. candidates maps chunk
// id to raw query similarity; vectors holds the per-candidate embeddings.
// Candidates without a vector are scored on relevance alone, which keeps the
// selection total even when the index returns a partial vector set.
func maximalMarginalRelevance(candidates map[string]float64, vectors map[string][]float32, lambda float64, k int) []string {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}

	remaining := rankDescending(candidates)
	if k > len(remaining) {
		k = len(remaining)
	}

	selected := make([]string, 0, k)
	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := 0.0
		for i, id := range remaining {
			score := lambda * candidates[id]
			if vec, ok := vectors[id]; ok {
				maxSim := 0.0
				for _, chosen := range selected {
					chosenVec, ok := vectors[chosen]
					if !ok {
						continue
					}
					if sim := cosineSimilarity(vec, chosenVec); sim > maxSim {
						maxSim = sim
					}
				}
				score -= (1 - lambda) * maxSim
			}
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// cosineSimilarity assumes unit-normalized vectors, so the inner product is
// the cosine.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
