// Package answer is the grounded responder: it retrieves evidence, generates
// a summary constrained to that evidence, validates the summary against it,
// and rebuilds the structured sections from the corpus. Generation never runs
// before the evidence set is finalized, and unverified content is never
// returned.
package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/raredex/internal/domain"
	"github.com/kailas-cloud/raredex/internal/metrics"
)

// DefaultMaxEvidenceChars bounds the total evidence text sent to the generator.
const DefaultMaxEvidenceChars = 6000

// generationRetryBackoff is the wait before the single timeout retry.
const generationRetryBackoff = 500 * time.Millisecond

// Query is one answer request.
type Query struct {
	Text string
	// OrphaCode optionally restricts evidence to one disease.
	OrphaCode string
}

// evidenceItem is a retrieval result flattened for prompting and validation.
type evidenceItem struct {
	chunk domain.Chunk
	text  string
	score float64
}

// Service answers clinical queries from retrieved evidence.
type Service struct {
	retriever        Retriever
	generator        Generator
	corpus           CorpusReader
	maxEvidenceChars int
	logger           *zap.Logger
}

// New creates a grounded responder.
func New(retriever Retriever, generator Generator, corpus CorpusReader, logger *zap.Logger) *Service {
	return &Service{
		retriever:        retriever,
		generator:        generator,
		corpus:           corpus,
		maxEvidenceChars: DefaultMaxEvidenceChars,
		logger:           logger,
	}
}

// WithMaxEvidenceChars configures the evidence budget for the prompt.
func (s *Service) WithMaxEvidenceChars(n int) *Service {
	if n > 0 {
		s.maxEvidenceChars = n
	}
	return s
}

// Answer retrieves evidence for the query and produces a grounded answer.
// No evidence above the cutoff yields an insufficient-evidence answer, not an
// error; a summary that fails grounding validation twice is an error.
func (s *Service) Answer(ctx context.Context, q Query) (domain.Answer, error) {
	filter := domain.ChunkFilter{DiseaseRef: q.OrphaCode}

	results, err := s.retriever.Retrieve(ctx, q.Text, 0, filter)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("retrieve evidence: %w", err)
	}
	if len(results) == 0 {
		s.logger.Info("No evidence above cutoff", zap.String("query", q.Text))
		return domain.InsufficientEvidenceAnswer(), nil
	}

	evidence := make([]evidenceItem, len(results))
	for i, r := range results {
		evidence[i] = evidenceItem{chunk: r.Chunk, text: r.Chunk.Text(), score: r.Score}
	}
	evidence = trimEvidence(evidence, s.maxEvidenceChars)

	summary, err := s.generateGrounded(ctx, q.Text, evidence)
	if err != nil {
		return domain.Answer{}, err
	}

	return s.assemble(ctx, evidence, summary), nil
}

// generateGrounded runs the generator and validates the output against the
// evidence, allowing one stricter retry before giving up.
func (s *Service) generateGrounded(ctx context.Context, query string, evidence []evidenceItem) (string, error) {
	user := buildUserPrompt(query, evidence)

	summary, err := s.generateSummary(ctx, systemPrompt, user)
	if err != nil {
		return "", err
	}

	violations := validateGrounding(summary, evidence)
	if len(violations) == 0 {
		return summary, nil
	}

	s.logger.Warn("Summary failed grounding validation, retrying",
		zap.Strings("violations", violations),
	)
	metrics.GroundingRetriesTotal.Inc()

	summary, err = s.generateSummary(ctx, strictSystemPrompt, user)
	if err != nil {
		return "", err
	}

	if violations = validateGrounding(summary, evidence); len(violations) > 0 {
		return "", fmt.Errorf("summary cites facts absent from evidence (%s): %w",
			strings.Join(violations, "; "), domain.ErrGroundingViolation)
	}

	return summary, nil
}

func (s *Service) generateSummary(ctx context.Context, system, user string) (string, error) {
	raw, err := s.complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", fmt.Errorf("parse generator output: %w: %w", domain.ErrGenerationService, err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return "", fmt.Errorf("generator returned empty summary: %w", domain.ErrGenerationService)
	}

	return parsed.Summary, nil
}

// complete calls the generator, retrying once with backoff when the provider
// times out. Grounding violations are handled separately in generateGrounded.
func (s *Service) complete(ctx context.Context, system, user string) (string, error) {
	raw, err := s.generator.Complete(ctx, system, user)
	if err == nil || !errors.Is(err, domain.ErrUpstreamTimeout) {
		return raw, err
	}

	s.logger.Warn("Generation timed out, retrying", zap.Error(err))
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(generationRetryBackoff):
	}

	return s.generator.Complete(ctx, system, user)
}
