package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/raredex/internal/config"
	"github.com/kailas-cloud/raredex/internal/db"
	dbMemory "github.com/kailas-cloud/raredex/internal/db/memory"
	dbRedis "github.com/kailas-cloud/raredex/internal/db/redis"
	"github.com/kailas-cloud/raredex/internal/domain"
	logpkg "github.com/kailas-cloud/raredex/internal/logger"
	"github.com/kailas-cloud/raredex/internal/metrics"
	"github.com/kailas-cloud/raredex/internal/normalize"
	chunkrepo "github.com/kailas-cloud/raredex/internal/repository/chunk"
	corpusrepo "github.com/kailas-cloud/raredex/internal/repository/corpus"
	"github.com/kailas-cloud/raredex/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/raredex/internal/transport/chi"
	openaiT "github.com/kailas-cloud/raredex/internal/transport/openai"
	answeruc "github.com/kailas-cloud/raredex/internal/usecase/answer"
	embeddinguc "github.com/kailas-cloud/raredex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/raredex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/raredex/internal/usecase/ingest"
	retrieveuc "github.com/kailas-cloud/raredex/internal/usecase/retrieve"
	"github.com/kailas-cloud/raredex/internal/version"
)

// batchEmbedder is an embedder with native batch support. Every layer of the
// decorator chain implements both methods.
type batchEmbedder interface {
	domain.Embedder
	domain.BatchEmbedder
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting raredex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Create database store based on driver
	var store db.Store
	switch cfg.Database.Driver {
	case "redis", "valkey":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
	case "memory":
		store = dbMemory.NewStore()
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	metrics.RegisterMetrics()

	// Base provider shared by both chains; health checks go straight to it.
	baseEmbedder := openaiT.NewEmbedder(&openaiT.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})

	docEmbedder := buildEmbedder(baseEmbedder, cfg, cfg.Embedding.DocumentInstruction, store, logger)
	queryEmbedder := buildEmbedder(baseEmbedder, cfg, cfg.Embedding.QueryInstruction, store, logger)
	logger.Info("Embedders created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	generator := openaiT.NewGenerator(&openaiT.GeneratorConfig{
		APIKey:    cfg.Generation.APIKey,
		BaseURL:   cfg.Generation.BaseURL,
		Model:     cfg.Generation.Model,
		MaxTokens: cfg.Generation.MaxTokens,
		Timeout:   time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		Logger:    logger,
	})

	// Repositories
	chunkRepo := chunkrepo.New(store, cfg.Embedding.Model, cfg.Embedding.Dimensions).
		WithHNSW(chunkrepo.HNSWConfig{
			M:           cfg.Index.HNSWM,
			EFConstruct: cfg.Index.HNSWEFConstruct,
		})
	if err := chunkRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure chunk index", zap.Error(err))
	}
	corpusRepo := corpusrepo.New(store)

	normalizer := normalize.New(normalize.Config{
		MaxChunkChars:       cfg.Ingest.MaxChunkChars,
		PaperSplitThreshold: cfg.Ingest.PaperSplitThreshold,
	})

	// Use case services
	ingestSvc := ingestuc.New(normalizer, corpusRepo, chunkRepo, docEmbedder, logger).
		WithBatchSize(cfg.Embedding.BatchSize).
		WithFailBatchOnError(cfg.Embedding.FailBatchOnError)
	retrieveSvc := retrieveuc.New(chunkRepo, queryEmbedder, retrieveuc.Config{
		TopK:            cfg.Retrieval.TopK,
		MinScore:        cfg.Retrieval.MinScore,
		RedundancyRatio: cfg.Retrieval.RedundancyRatio,
	}, logger)
	answerSvc := answeruc.New(retrieveSvc, generator, corpusRepo, logger).
		WithMaxEvidenceChars(cfg.Retrieval.MaxEvidenceChars)
	healthSvc := healthuc.New(store, baseEmbedder, generator, chunkRepo)

	if err := loadStartupCorpus(ctx, cfg.Ingest, ingestSvc, logger); err != nil {
		logger.Fatal("Startup corpus load failed", zap.Error(err))
	}

	// Create chi server
	server := chiTransport.NewServer(answerSvc, ingestSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Retry -> Instruction
func buildEmbedder(
	base *openaiT.Embedder,
	cfg config.Config,
	instruction string,
	store db.Store,
	logger *zap.Logger,
) batchEmbedder {
	// Cached
	var embedder batchEmbedder = base
	if store != nil {
		embedder = embcache.New(base, store, cfg.Embedding.Model, metrics.EmbeddingCacheTotal, logger)
	}

	// Retry with backoff on transient provider errors
	embedder = embeddinguc.NewRetryEmbedder(embedder, embeddinguc.RetryConfig{
		Attempts: cfg.Embedding.RetryAttempts,
		Backoff:  time.Duration(cfg.Embedding.RetryBackoffMS) * time.Millisecond,
		Timeout:  time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
	}, logger)

	// Instruction prefix (outermost — cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
}

// loadStartupCorpus reindexes from the configured corpus files, if any.
func loadStartupCorpus(
	ctx context.Context, cfg config.IngestConfig, svc *ingestuc.Service, logger *zap.Logger,
) error {
	if cfg.DiseasesPath == "" && cfg.PapersPath == "" {
		return nil
	}

	var diseases map[string]domain.DiseaseRecord
	if cfg.DiseasesPath != "" {
		if err := readJSONFile(cfg.DiseasesPath, &diseases); err != nil {
			return fmt.Errorf("load diseases corpus: %w", err)
		}
	}

	var papers []domain.ResearchPaper
	if cfg.PapersPath != "" {
		if err := readJSONFile(cfg.PapersPath, &papers); err != nil {
			return fmt.Errorf("load papers corpus: %w", err)
		}
	}

	report, err := svc.Reindex(ctx, diseases, papers)
	if err != nil {
		return fmt.Errorf("startup reindex: %w", err)
	}

	logger.Info("Startup corpus indexed",
		zap.Int("diseases", report.DiseasesStored),
		zap.Int("papers", report.PapersStored),
		zap.Int("chunks_indexed", report.ChunksIndexed),
		zap.Int("chunks_failed", report.ChunksFailed),
		zap.Int("skipped", len(report.SkippedRecords)),
	)
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
