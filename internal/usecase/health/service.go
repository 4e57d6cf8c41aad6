package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status      Status                 `json:"status"`
	Checks      map[string]CheckResult `json:"checks"`
	IndexedDocs int                    `json:"indexed_docs,omitempty"`
}

// Service coordinates health checks across the store and API providers.
type Service struct {
	db         DBPinger
	embedding  ProviderChecker
	generation ProviderChecker
	index      IndexCounter
}

// New creates a Service. embedding, generation, and index can be nil.
func New(db DBPinger, embedding, generation ProviderChecker, index IndexCounter) *Service {
	return &Service{db: db, embedding: embedding, generation: generation, index: index}
}

// Check runs health checks against all configured components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["database"] = resultOf(s.db.Ping(ctx))
	if s.embedding != nil {
		checks["embedding"] = resultOf(s.embedding.HealthCheck(ctx))
	}
	if s.generation != nil {
		checks["generation"] = resultOf(s.generation.HealthCheck(ctx))
	}

	report := Report{Status: Healthy, Checks: checks}

	if s.index != nil {
		n, err := s.index.Count(ctx)
		checks["index"] = resultOf(err)
		report.IndexedDocs = n
	}

	for _, v := range checks {
		if v == CheckError {
			report.Status = Degraded
			break
		}
	}

	return report
}

func resultOf(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
