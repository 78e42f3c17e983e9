package domain

// VectorHit is one nearest neighbor from the vector index,
// returned in ascending distance order.
type VectorHit struct {
	ChunkID  string
	Distance float64
}

// LexicalHit is one full-text match with the index's native relevance score.
type LexicalHit struct {
	ChunkID string
	Score   float64
}

// ScoredChunk is one entry of a RetrievalResult.
type ScoredChunk struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// RetrievalResult is the fused candidate ranking, descending by score,
// ties broken by ascending chunk id.
type RetrievalResult []ScoredChunk

func (r RetrievalResult) IDs() []string {
	ids := make([]string, len(r))
	for i, sc := range r {
		ids[i] = sc.ChunkID
	}
	return ids
}

// ChunkCandidate is a retrieved chunk with its per-query scores.
// Identity is the chunk id; everything else is derived per request and
// never persisted. RerankScore is set only after the gate runs.
type ChunkCandidate struct {
	ID          string
	Text        string
	SectionPath string
	Citation    ChunkCitation
	FusedScore  float64
	RerankScore *float64
}

// StoredChunk is the chunk store's record for one chunk id.
type StoredChunk struct {
	ID          string
	Text        string
	SectionPath string
}

// ChunkCitation is the source metadata attached to a chunk.
type ChunkCitation struct {
	Title string
	File  string
}
