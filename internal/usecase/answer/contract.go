package answer

import (
	"context"

	"github.com/kailas-cloud/raredex/internal/domain"
)

// Retriever returns the ranked evidence set for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filter domain.ChunkFilter) ([]domain.RetrievalResult, error)
}

// Generator produces the answer narrative from a system+user prompt pair.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CorpusReader fetches the source records referenced by evidence chunks.
type CorpusReader interface {
	GetDisease(ctx context.Context, orphaCode string) (domain.DiseaseRecord, error)
	GetPaper(ctx context.Context, id string) (domain.ResearchPaper, error)
}
