package domain

// RetrievalResult is a query-scoped evidence hit: a chunk with its similarity
// score and final rank. Never persisted.
type RetrievalResult struct {
	Chunk Chunk
	Score float64 // cosine similarity, higher is more relevant
	Rank  int     // 1-based position after dedupe and cutoff
}

// ChunkFilter restricts index candidates by metadata before ranking.
// Zero value matches everything.
type ChunkFilter struct {
	SourceType SourceType
	DiseaseRef string
	PaperRef   string
}

// IsEmpty reports whether the filter has no conditions.
func (f ChunkFilter) IsEmpty() bool {
	return f.SourceType == "" && f.DiseaseRef == "" && f.PaperRef == ""
}
