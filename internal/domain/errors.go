package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing corpus record.
	ErrNotFound = errors.New("not found")
	// ErrMalformedRecord signals a source record missing required fields.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrEmbeddingService signals an embedding provider failure (retryable).
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrEmbeddingModelMismatch signals that the configured embedding model
	// differs from the one the index was built with.
	ErrEmbeddingModelMismatch = errors.New("embedding model mismatch")
	// ErrIndexUnavailable signals that the backing store cannot be reached.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrVectorDimMismatch signals a vector dimension mismatch against the index.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrGroundingViolation signals generated output that failed the provenance check.
	ErrGroundingViolation = errors.New("grounding violation")
	// ErrUpstreamTimeout signals a timed-out call to an external service.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrGenerationService signals a generation provider failure (retryable).
	ErrGenerationService = errors.New("generation service error")
)

// RecordError is a per-record ingestion failure. It wraps ErrMalformedRecord
// so batch summaries stay inspectable with errors.Is.
type RecordError struct {
	RecordID string
	Reason   string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: record %q: %s", ErrMalformedRecord.Error(), e.RecordID, e.Reason)
}

func (e *RecordError) Unwrap() error { return ErrMalformedRecord }

// NewRecordError creates a per-record ingestion error.
func NewRecordError(recordID, reason string) *RecordError {
	return &RecordError{RecordID: recordID, Reason: reason}
}
