// Package metrics holds the Prometheus collectors for the embedding,
// generation, and ingest paths plus the HTTP middleware.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raredex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "raredex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raredex",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raredex",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// Generation Prometheus metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raredex",
			Name:      "generation_requests_total",
			Help:      "Total number of answer generation requests",
		},
		[]string{"model", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "raredex",
			Name:      "generation_request_duration_seconds",
			Help:      "Answer generation request duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"model"},
	)

	GenerationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raredex",
			Name:      "generation_tokens_total",
			Help:      "Total generation tokens consumed",
		},
		[]string{"model", "type"}, // type: "prompt" / "completion"
	)

	GroundingRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raredex",
			Name:      "grounding_retries_total",
			Help:      "Answers regenerated after failing grounding validation",
		},
	)
)

// Retrieval Prometheus metrics.
var (
	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raredex",
			Name:      "retrieval_requests_total",
			Help:      "Retrieval queries by outcome",
		},
		[]string{"status"}, // "ok" / "empty" / "error"
	)

	RetrievalEvidenceCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "raredex",
			Name:      "retrieval_evidence_count",
			Help:      "Evidence chunks returned per query",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)
)

// Ingest Prometheus metrics.
var (
	IngestChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raredex",
			Name:      "ingest_chunks_total",
			Help:      "Chunks processed during ingest",
		},
		[]string{"status"}, // "indexed" / "skipped" / "failed"
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "raredex",
			Name:      "ingest_duration_seconds",
			Help:      "Full reindex duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

var metricsRegistered bool

// RegisterMetrics registers the pipeline collectors. Must be called once from main.
func RegisterMetrics() {
	if metricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	prometheus.MustRegister(GenerationTokensTotal)
	prometheus.MustRegister(GroundingRetriesTotal)
	prometheus.MustRegister(RetrievalRequestsTotal)
	prometheus.MustRegister(RetrievalEvidenceCount)
	prometheus.MustRegister(IngestChunksTotal)
	prometheus.MustRegister(IngestDuration)
	metricsRegistered = true
}
