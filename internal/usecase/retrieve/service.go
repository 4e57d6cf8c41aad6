// Package retrieve is the query side of the pipeline: embed the query, rank
// chunks by similarity, and post-filter the hits into a compact evidence set.
package retrieve

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/raredex/internal/domain"
	"github.com/kailas-cloud/raredex/internal/metrics"
	"github.com/kailas-cloud/raredex/internal/repository/chunk"
)

const (
	// DefaultTopK is the number of results returned per query.
	DefaultTopK = 5
	// DefaultMinScore is the similarity cutoff below which hits are dropped.
	DefaultMinScore = 0.25
	// DefaultRedundancyRatio controls source-level dedupe: a lower-ranked
	// chunk of an already-represented source is dropped when its score is
	// within this ratio of the best kept chunk for that source.
	DefaultRedundancyRatio = 0.97
	// overFetchFactor widens the index query so the cutoff and dedupe still
	// leave k results when possible.
	overFetchFactor = 3
)

// Config tunes retrieval behavior.
type Config struct {
	TopK            int
	MinScore        float64
	RedundancyRatio float64
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MinScore <= 0 {
		c.MinScore = DefaultMinScore
	}
	if c.RedundancyRatio <= 0 {
		c.RedundancyRatio = DefaultRedundancyRatio
	}
}

// Service retrieves the most relevant chunks for a query.
type Service struct {
	searcher Searcher
	embedder Embedder
	cfg      Config
	logger   *zap.Logger
}

// New creates a retrieval service.
func New(searcher Searcher, embedder Embedder, cfg Config, logger *zap.Logger) *Service {
	cfg.ApplyDefaults()
	return &Service{searcher: searcher, embedder: embedder, cfg: cfg, logger: logger}
}

// Retrieve embeds the query and returns up to k ranked results. k <= 0 falls
// back to the configured top-k. An empty outcome is a nil slice, not an error.
func (s *Service) Retrieve(
	ctx context.Context, query string, k int, filter domain.ChunkFilter,
) ([]domain.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query: %w", domain.ErrMalformedRecord)
	}
	if k <= 0 {
		k = s.cfg.TopK
	}

	embedded, err := s.embedder.Embed(ctx, query)
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch: the score cutoff and the redundancy collapse both shrink
	// the candidate set after ranking.
	hits, total, err := s.searcher.SearchKNN(ctx, embedded.Embedding, k*overFetchFactor, filter)
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search: %w", err)
	}

	results := s.selectEvidence(hits, k)

	status := "ok"
	if len(results) == 0 {
		status = "empty"
	}
	metrics.RetrievalRequestsTotal.WithLabelValues(status).Inc()
	metrics.RetrievalEvidenceCount.Observe(float64(len(results)))

	s.logger.Debug("Retrieval complete",
		zap.Int("requested", k),
		zap.Int("candidates", total),
		zap.Int("returned", len(results)),
	)

	return results, nil
}

// selectEvidence applies the min-score cutoff and per-source redundancy
// collapse, then truncates to k and assigns ranks.
func (s *Service) selectEvidence(hits []chunk.Hit, k int) []domain.RetrievalResult {
	var results []domain.RetrievalResult
	bestPerSource := make(map[string]float64)

	for _, hit := range hits {
		if hit.Score < s.cfg.MinScore {
			// Hits arrive score-descending, everything after is lower still.
			break
		}

		source := hit.Chunk.SourceRef()
		if best, seen := bestPerSource[source]; seen && hit.Score >= s.cfg.RedundancyRatio*best {
			// Near-duplicate of an already kept chunk from the same record.
			continue
		}
		if _, seen := bestPerSource[source]; !seen {
			bestPerSource[source] = hit.Score
		}

		results = append(results, domain.RetrievalResult{
			Chunk: hit.Chunk,
			Score: hit.Score,
			Rank:  len(results) + 1,
		})
		if len(results) == k {
			break
		}
	}

	return results
}
