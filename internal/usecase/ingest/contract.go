package ingest

import (
	"context"

	"github.com/kailas-cloud/raredex/internal/domain"
)

// Normalizer converts source records into embeddable chunks.
type Normalizer interface {
	Normalize(diseases map[string]domain.DiseaseRecord, papers []domain.ResearchPaper) ([]domain.Chunk, []*domain.RecordError)
}

// CorpusWriter persists the source records referenced by index chunks.
type CorpusWriter interface {
	PutDisease(ctx context.Context, rec domain.DiseaseRecord) error
	PutPaper(ctx context.Context, p domain.ResearchPaper) error
	Clear(ctx context.Context) error
}

// ChunkIndexer writes chunks and their vectors to the index.
type ChunkIndexer interface {
	BatchUpsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Clear(ctx context.Context) error
}

// Embedder vectorizes chunk texts in batches.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
