// Package chi exposes the pipeline over HTTP: answer queries, trigger
// reindexing, and report health and metrics.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/raredex/internal/domain"
	answeruc "github.com/kailas-cloud/raredex/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/raredex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/raredex/internal/usecase/ingest"
)

// errorCode is the machine-readable code carried in error responses.
type errorCode string

const (
	codeBadRequest        errorCode = "bad_request"
	codeMalformedRecord   errorCode = "malformed_record"
	codeNotFound          errorCode = "not_found"
	codeGroundingFailed   errorCode = "grounding_failed"
	codeEmbeddingError    errorCode = "embedding_service_error"
	codeGenerationError   errorCode = "generation_service_error"
	codeIndexUnavailable  errorCode = "index_unavailable"
	codeUpstreamTimeout   errorCode = "upstream_timeout"
	codeIndexInconsistent errorCode = "index_inconsistent"
	codeInternalError     errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server routes HTTP requests to the answer, ingest, and health services.
type Server struct {
	answer        *answeruc.Service
	ingest        *ingestuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	answer *answeruc.Service,
	ingest *ingestuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		answer: answer,
		ingest: ingest,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrMalformedRecord, http.StatusBadRequest, codeMalformedRecord),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrUpstreamTimeout, http.StatusGatewayTimeout, codeUpstreamTimeout),
		sentinelHandler(domain.ErrGroundingViolation, http.StatusBadGateway, codeGroundingFailed),
		sentinelHandler(domain.ErrEmbeddingService, http.StatusBadGateway, codeEmbeddingError),
		sentinelHandler(domain.ErrGenerationService, http.StatusBadGateway, codeGenerationError),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, codeIndexUnavailable),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusInternalServerError, codeIndexInconsistent),
		sentinelHandler(domain.ErrEmbeddingModelMismatch, http.StatusInternalServerError, codeIndexInconsistent),
	}
	return s
}

// Register mounts the API routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/answer", s.Answer)
	r.Post("/v1/ingest", s.Ingest)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// AnswerRequest is the body of POST /v1/answer.
type AnswerRequest struct {
	Query     string `json:"query"`
	OrphaCode string `json:"orpha_code,omitempty"`
}

// Answer handles POST /v1/answer.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "query is required")
		return
	}

	ans, err := s.answer.Answer(r.Context(), answeruc.Query{
		Text:      req.Query,
		OrphaCode: req.OrphaCode,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ans)
}

// IngestRequest is the body of POST /v1/ingest. Diseases are keyed by orpha
// code, matching the source corpus layout.
type IngestRequest struct {
	Diseases map[string]domain.DiseaseRecord `json:"diseases"`
	Papers   []domain.ResearchPaper          `json:"research_papers"`
}

// Ingest handles POST /v1/ingest. The whole corpus is replaced; malformed
// records are reported, not fatal.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Diseases) == 0 && len(req.Papers) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "at least one disease or paper is required")
		return
	}

	report, err := s.ingest.Reindex(r.Context(), req.Diseases, req.Papers)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrMalformedRecord,
		domain.ErrNotFound,
		domain.ErrUpstreamTimeout,
		domain.ErrGroundingViolation,
		domain.ErrEmbeddingService,
		domain.ErrGenerationService,
		domain.ErrIndexUnavailable,
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingModelMismatch,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
