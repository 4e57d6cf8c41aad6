// Package embedding holds the embedder decorators that sit between the
// transport client and the pipeline: retry with backoff and per-call timeouts.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/raredex/internal/domain"
)

// RetryConfig tunes the retry decorator.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// Backoff is the delay before the second attempt; it doubles per retry.
	Backoff time.Duration
	// Timeout bounds each individual attempt. Zero disables the per-attempt bound.
	Timeout time.Duration
}

// RetryEmbedder wraps an embedder with bounded retries. Only transient
// provider failures are retried; anything else surfaces immediately.
type RetryEmbedder struct {
	inner  domain.Embedder
	cfg    RetryConfig
	logger *zap.Logger
}

// NewRetryEmbedder wraps an embedder with retry behavior.
func NewRetryEmbedder(inner domain.Embedder, cfg RetryConfig, logger *zap.Logger) *RetryEmbedder {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &RetryEmbedder{inner: inner, cfg: cfg, logger: logger}
}

// Embed delegates to the inner embedder, retrying transient failures.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var result domain.EmbeddingResult
	err := r.withRetries(ctx, func(attemptCtx context.Context) error {
		var innerErr error
		result, innerErr = r.inner.Embed(attemptCtx, text)
		return innerErr
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return result, nil
}

// BatchEmbed delegates to the inner batch embedder, retrying the whole batch
// on transient failures. A batch is one API call, so partial retry does not apply.
func (r *RetryEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	var result domain.BatchEmbeddingResult
	err := r.withRetries(ctx, func(attemptCtx context.Context) error {
		var innerErr error
		result, innerErr = r.embedBatch(attemptCtx, texts)
		return innerErr
	})
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return result, nil
}

func (r *RetryEmbedder) embedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := r.inner.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, r.inner, texts)
}

func (r *RetryEmbedder) withRetries(ctx context.Context, call func(ctx context.Context) error) error {
	backoff := r.cfg.Backoff
	var lastErr error

	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry wait: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lastErr = r.attempt(ctx, call)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}

		r.logger.Warn("Embedding attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.cfg.Attempts),
			zap.Error(lastErr),
		)
	}

	return fmt.Errorf("all %d attempts failed: %w", r.cfg.Attempts, lastErr)
}

func (r *RetryEmbedder) attempt(ctx context.Context, call func(ctx context.Context) error) error {
	if r.cfg.Timeout > 0 {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		return call(attemptCtx)
	}
	return call(ctx)
}

// retryable reports whether an error is worth another attempt. Parent context
// cancellation is terminal even when it surfaces as a provider timeout.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, domain.ErrEmbeddingService) || errors.Is(err, domain.ErrUpstreamTimeout)
}
