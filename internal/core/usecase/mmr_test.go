package usecase

import "testing"

func TestMMRFirstPickIsHighestSimilarity(t *testing.T) {
	candidates := map[string]float64{"a": 0.7, "b": 0.9, "c": 0.5}
	vectors := map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
		"c": {1, 0},
	}

	selected := maximalMarginalRelevance(candidates, vectors, 0.5, 3)
	if len(selected) == 0 || selected[0] != "b" {
		t.Fatalf("expected first pick b, got %v", selected)
	}
}

func TestMMRPenalizesRedundancy(t *testing.T) {
	// a and b are identical vectors; c is orthogonal with a lower raw score.
	candidates := map[string]float64{"a": 0.9, "b": 0.85, "c": 0.5}
	vectors := map[string][]float32{
		"a": {1, 0},
		"b": {1, 0},
		"c": {0, 1},
	}

	selected := maximalMarginalRelevance(candidates, vectors, 0.5, 2)
	if len(selected) != 2 {
		t.Fatalf("expected 2 selections, got %d", len(selected))
	}
	if selected[0] != "a" || selected[1] != "c" {
		t.Fatalf("expected diversity to pick [a c], got %v", selected)
	}
}

func TestMMRLambdaOnePureRelevance(t *testing.T) {
	candidates := map[string]float64{"a": 0.9, "b": 0.85, "c": 0.5}
	vectors := map[string][]float32{
		"a": {1, 0},
		"b": {1, 0},
		"c": {0, 1},
	}

	selected := maximalMarginalRelevance(candidates, vectors, 1.0, 3)
	want := []string{"a", "b", "c"}
	for i := range want {
		if selected[i] != want[i] {
			t.Fatalf("expected relevance order %v, got %v", want, selected)
		}
	}
}

func TestMMRCapsAtKDistinct(t *testing.T) {
	candidates := map[string]float64{"a": 0.9, "b": 0.8, "c": 0.7, "d": 0.6}

	selected := maximalMarginalRelevance(candidates, nil, 0.5, 2)
	if len(selected) != 2 {
		t.Fatalf("expected 2 selections, got %d", len(selected))
	}
	seen := map[string]bool{}
	for _, id := range selected {
		if seen[id] {
			t.Fatalf("duplicate selection %s in %v", id, selected)
		}
		seen[id] = true
	}
}

func TestMMRMissingVectorsScoredOnRelevance(t *testing.T) {
	candidates := map[string]float64{"a": 0.9, "b": 0.8, "c": 0.7}
	vectors := map[string][]float32{"a": {1, 0}}

	selected := maximalMarginalRelevance(candidates, vectors, 0.5, 3)
	if len(selected) != 3 {
		t.Fatalf("expected partial vector set to keep selection total, got %v", selected)
	}
}
