package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/raredex/internal/domain"
	"github.com/kailas-cloud/raredex/internal/normalize"
	answeruc "github.com/kailas-cloud/raredex/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/raredex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/raredex/internal/usecase/ingest"
)

type mockRetriever struct {
	results []domain.RetrievalResult
	err     error
}

func (m *mockRetriever) Retrieve(
	_ context.Context, _ string, _ int, _ domain.ChunkFilter,
) ([]domain.RetrievalResult, error) {
	return m.results, m.err
}

type mockGenerator struct {
	response string
	err      error
}

func (m *mockGenerator) Complete(_ context.Context, _, _ string) (string, error) {
	return m.response, m.err
}

// mockCorpusReader has no records; answer assembly degrades to summary-only.
type mockCorpusReader struct{}

func (m *mockCorpusReader) GetDisease(_ context.Context, _ string) (domain.DiseaseRecord, error) {
	return domain.DiseaseRecord{}, domain.ErrNotFound
}

func (m *mockCorpusReader) GetPaper(_ context.Context, _ string) (domain.ResearchPaper, error) {
	return domain.ResearchPaper{}, domain.ErrNotFound
}

type mockCorpusWriter struct{}

func (m *mockCorpusWriter) PutDisease(_ context.Context, _ domain.DiseaseRecord) error { return nil }
func (m *mockCorpusWriter) PutPaper(_ context.Context, _ domain.ResearchPaper) error   { return nil }
func (m *mockCorpusWriter) Clear(_ context.Context) error                              { return nil }

type mockIndexer struct {
	upserted int
}

func (m *mockIndexer) BatchUpsert(_ context.Context, chunks []domain.Chunk, _ [][]float32) error {
	m.upserted += len(chunks)
	return nil
}

func (m *mockIndexer) Clear(_ context.Context) error { return nil }

type mockBatchEmbedder struct{}

func (m *mockBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
}

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

func testEvidence() []domain.RetrievalResult {
	c := domain.ReconstructChunk(
		"d:79264:f:neurological", domain.SourceDiseaseFeature,
		"Disease: Alexander disease (ORPHA:79264). Clinical features, neurological: seizures; developmental delay.",
		"79264", "", "neurological",
	)
	return []domain.RetrievalResult{{Chunk: c, Score: 0.9, Rank: 1}}
}

func newTestRouter(retriever *mockRetriever, generator *mockGenerator, dbErr error) http.Handler {
	logger := zap.NewNop()

	answerSvc := answeruc.New(retriever, generator, &mockCorpusReader{}, logger)
	ingestSvc := ingestuc.New(
		normalize.New(normalize.Config{}),
		&mockCorpusWriter{}, &mockIndexer{}, &mockBatchEmbedder{}, logger,
	)
	healthSvc := healthuc.New(&mockDBPinger{err: dbErr}, nil, nil, nil)

	server := NewServer(answerSvc, ingestSvc, healthSvc, logger)
	r := chirouter.NewRouter()
	server.Register(r)
	return r
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestAnswer_HappyPath(t *testing.T) {
	handler := newTestRouter(
		&mockRetriever{results: testEvidence()},
		&mockGenerator{response: `{"summary": "The disease causes seizures and developmental delay."}`},
		nil,
	)

	rr := postJSON(t, handler, "/v1/answer", `{"query": "what are the symptoms?"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var ans domain.Answer
	if err := json.NewDecoder(rr.Body).Decode(&ans); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if ans.Summary == "" {
		t.Error("summary is empty")
	}
	if ans.InsufficientEvidence {
		t.Error("unexpected insufficient_evidence")
	}
	if len(ans.Sources) != 1 || ans.Sources[0] != "d:79264:f:neurological" {
		t.Errorf("sources = %v", ans.Sources)
	}
}

func TestAnswer_InsufficientEvidence_200(t *testing.T) {
	handler := newTestRouter(&mockRetriever{}, &mockGenerator{}, nil)

	rr := postJSON(t, handler, "/v1/answer", `{"query": "unknown condition"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var ans domain.Answer
	if err := json.NewDecoder(rr.Body).Decode(&ans); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if !ans.InsufficientEvidence {
		t.Error("expected insufficient_evidence")
	}
}

func TestAnswer_EmptyQuery_400(t *testing.T) {
	handler := newTestRouter(&mockRetriever{}, &mockGenerator{}, nil)

	rr := postJSON(t, handler, "/v1/answer", `{"query": "  "}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAnswer_InvalidJSON_400(t *testing.T) {
	handler := newTestRouter(&mockRetriever{}, &mockGenerator{}, nil)

	rr := postJSON(t, handler, "/v1/answer", `{not json`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAnswer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   errorCode
	}{
		{"embedding service down", domain.ErrEmbeddingService, http.StatusBadGateway, codeEmbeddingError},
		{"generation service down", domain.ErrGenerationService, http.StatusBadGateway, codeGenerationError},
		{"upstream timeout", domain.ErrUpstreamTimeout, http.StatusGatewayTimeout, codeUpstreamTimeout},
		{"grounding violation", domain.ErrGroundingViolation, http.StatusBadGateway, codeGroundingFailed},
		{"index unavailable", domain.ErrIndexUnavailable, http.StatusServiceUnavailable, codeIndexUnavailable},
		{"dim mismatch", domain.ErrVectorDimMismatch, http.StatusInternalServerError, codeIndexInconsistent},
		{"malformed", domain.ErrMalformedRecord, http.StatusBadRequest, codeMalformedRecord},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, codeInternalError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestRouter(
				&mockRetriever{err: fmt.Errorf("retrieve: %w", tc.err)},
				&mockGenerator{},
				nil,
			)

			rr := postJSON(t, handler, "/v1/answer", `{"query": "seizures"}`)

			if rr.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tc.wantStatus)
			}

			var errResp errorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != tc.wantCode {
				t.Errorf("code = %s, want %s", errResp.Code, tc.wantCode)
			}
		})
	}
}

func TestIngest_HappyPath(t *testing.T) {
	handler := newTestRouter(&mockRetriever{}, &mockGenerator{}, nil)

	body := `{
		"diseases": {
			"79264": {
				"name": "Alexander disease",
				"clinical_features": {"neurological": ["seizures", "developmental delay"]}
			}
		},
		"research_papers": [
			{"title": "GFAP mutations in Alexander disease", "key_findings": ["de novo mutations dominate"], "publication_year": "2020"}
		]
	}`

	rr := postJSON(t, handler, "/v1/ingest", body)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var report ingestuc.Report
	if err := json.NewDecoder(rr.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.DiseasesStored != 1 {
		t.Errorf("diseases stored = %d, want 1", report.DiseasesStored)
	}
	if report.PapersStored != 1 {
		t.Errorf("papers stored = %d, want 1", report.PapersStored)
	}
	if report.ChunksIndexed == 0 {
		t.Error("no chunks indexed")
	}
}

func TestIngest_EmptyCorpus_400(t *testing.T) {
	handler := newTestRouter(&mockRetriever{}, &mockGenerator{}, nil)

	rr := postJSON(t, handler, "/v1/ingest", `{}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHealth_Healthy_200(t *testing.T) {
	handler := newTestRouter(&mockRetriever{}, &mockGenerator{}, nil)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var report healthuc.Report
	if err := json.NewDecoder(rr.Body).Decode(&report); err != nil {
		t.Fatalf("decode health report: %v", err)
	}
	if report.Status != healthuc.Healthy {
		t.Errorf("status = %q, want %q", report.Status, healthuc.Healthy)
	}
}

func TestHealth_Degraded_503(t *testing.T) {
	handler := newTestRouter(&mockRetriever{}, &mockGenerator{}, errors.New("conn refused"))

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
