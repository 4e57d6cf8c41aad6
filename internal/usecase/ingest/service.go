// Package ingest drives the build side of the pipeline: normalize source
// records, embed chunk texts in batches, and upsert everything into the index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/raredex/internal/domain"
	"github.com/kailas-cloud/raredex/internal/metrics"
)

// DefaultBatchSize is the number of chunk texts embedded per API call.
const DefaultBatchSize = 32

// Report summarizes one reindex run.
type Report struct {
	ID             uuid.UUID             `json:"id"`
	DiseasesStored int                   `json:"diseases_stored"`
	PapersStored   int                   `json:"papers_stored"`
	ChunksIndexed  int                   `json:"chunks_indexed"`
	ChunksFailed   int                   `json:"chunks_failed"`
	Skipped        []*domain.RecordError `json:"-"`
	SkippedRecords []string              `json:"skipped_records,omitempty"`
	Aborted        bool                  `json:"aborted,omitempty"`
	Duration       time.Duration         `json:"-"`
	DurationMS     int64                 `json:"duration_ms"`
}

// Service rebuilds the corpus and the vector index from source records.
type Service struct {
	normalizer       Normalizer
	corpus           CorpusWriter
	index            ChunkIndexer
	embedder         Embedder
	batchSize        int
	failBatchOnError bool
	logger           *zap.Logger
}

// New creates an ingest service.
func New(
	normalizer Normalizer, corpus CorpusWriter, index ChunkIndexer,
	embedder Embedder, logger *zap.Logger,
) *Service {
	return &Service{
		normalizer: normalizer,
		corpus:     corpus,
		index:      index,
		embedder:   embedder,
		batchSize:  DefaultBatchSize,
		logger:     logger,
	}
}

// WithBatchSize configures the embedding batch size.
func (s *Service) WithBatchSize(size int) *Service {
	if size > 0 {
		s.batchSize = size
	}
	return s
}

// WithFailBatchOnError makes any per-batch failure fatal to the whole run
// instead of being collected into the report.
func (s *Service) WithFailBatchOnError(fail bool) *Service {
	s.failBatchOnError = fail
	return s
}

// Reindex wipes the stored corpus and index contents and rebuilds both from
// the given records. Malformed records are skipped and reported; a provider
// failure aborts the remaining batches but keeps what was already indexed.
func (s *Service) Reindex(
	ctx context.Context,
	diseases map[string]domain.DiseaseRecord,
	papers []domain.ResearchPaper,
) (Report, error) {
	start := time.Now()
	report := Report{ID: uuid.New()}

	chunks, skipped := s.normalizer.Normalize(diseases, papers)
	report.Skipped = skipped
	for _, rec := range skipped {
		report.SkippedRecords = append(report.SkippedRecords, rec.RecordID)
		s.logger.Warn("Skipping malformed record",
			zap.String("record_id", rec.RecordID),
			zap.String("reason", rec.Reason),
		)
	}

	if err := s.corpus.Clear(ctx); err != nil {
		return report, fmt.Errorf("clear corpus: %w", err)
	}
	if err := s.index.Clear(ctx); err != nil {
		return report, fmt.Errorf("clear index: %w", err)
	}

	if err := s.storeRecords(ctx, &report, diseases, papers); err != nil {
		return report, err
	}

	if err := s.indexChunks(ctx, &report, chunks); err != nil {
		return report, err
	}

	report.Duration = time.Since(start)
	report.DurationMS = report.Duration.Milliseconds()
	metrics.IngestDuration.Observe(report.Duration.Seconds())

	s.logger.Info("Reindex complete",
		zap.String("report_id", report.ID.String()),
		zap.Int("diseases", report.DiseasesStored),
		zap.Int("papers", report.PapersStored),
		zap.Int("chunks_indexed", report.ChunksIndexed),
		zap.Int("chunks_failed", report.ChunksFailed),
		zap.Int("records_skipped", len(report.Skipped)),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}

// storeRecords persists the well-formed source records. The normalizer already
// reported the malformed ones, so they are silently skipped here.
func (s *Service) storeRecords(
	ctx context.Context, report *Report,
	diseases map[string]domain.DiseaseRecord, papers []domain.ResearchPaper,
) error {
	for code, rec := range diseases {
		// The source corpus is keyed by orpha code; the record itself may omit it.
		if rec.OrphaCode == "" {
			rec.OrphaCode = code
		}
		if rec.Name == "" {
			continue
		}
		if err := s.corpus.PutDisease(ctx, rec); err != nil {
			return fmt.Errorf("store disease %s: %w", rec.OrphaCode, err)
		}
		report.DiseasesStored++
	}

	for _, p := range papers {
		if p.Title == "" {
			continue
		}
		if err := s.corpus.PutPaper(ctx, p); err != nil {
			return fmt.Errorf("store paper %s: %w", p.ID(), err)
		}
		report.PapersStored++
	}

	return nil
}

func (s *Service) indexChunks(ctx context.Context, report *Report, chunks []domain.Chunk) error {
	for offset := 0; offset < len(chunks); offset += s.batchSize {
		end := offset + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[offset:end]

		if err := s.indexBatch(ctx, batch); err != nil {
			if s.failBatchOnError {
				return fmt.Errorf("batch at offset %d: %w", offset, err)
			}

			report.ChunksFailed += len(batch)
			metrics.IngestChunksTotal.WithLabelValues("failed").Add(float64(len(batch)))
			s.logger.Error("Batch failed",
				zap.Int("offset", offset),
				zap.Int("size", len(batch)),
				zap.Error(err),
			)

			// A dead or rate-limited provider fails every remaining batch the
			// same way; stop instead of burning through the retry budget.
			if cascading(err) {
				report.ChunksFailed += len(chunks) - end
				report.Aborted = true
				s.logger.Error("Aborting remaining batches",
					zap.Int("chunks_remaining", len(chunks)-end),
					zap.Error(err),
				)
				return nil
			}
			continue
		}

		report.ChunksIndexed += len(batch)
		metrics.IngestChunksTotal.WithLabelValues("indexed").Add(float64(len(batch)))
	}

	return nil
}

func (s *Service) indexBatch(ctx context.Context, batch []domain.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text()
	}

	res, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(res.Embeddings) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks: %w",
			len(res.Embeddings), len(batch), domain.ErrEmbeddingService)
	}

	if err := s.index.BatchUpsert(ctx, batch, res.Embeddings); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}

	return nil
}

func cascading(err error) bool {
	return errors.Is(err, domain.ErrEmbeddingService) ||
		errors.Is(err, domain.ErrUpstreamTimeout) ||
		errors.Is(err, domain.ErrIndexUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
