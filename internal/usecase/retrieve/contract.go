package retrieve

import (
	"context"

	"github.com/kailas-cloud/raredex/internal/domain"
	"github.com/kailas-cloud/raredex/internal/repository/chunk"
)

// Searcher runs KNN queries against the chunk index.
type Searcher interface {
	SearchKNN(ctx context.Context, vector []float32, k int, f domain.ChunkFilter) (hits []chunk.Hit, total int, err error)
}

// Embedder vectorizes the user query.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
