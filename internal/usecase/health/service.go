package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates the index is ready and every dependency answers.
	Healthy Status = "ok"
	// Starting indicates the index is still being built.
	Starting Status = "starting"
	// Degraded indicates the index is ready but a dependency failed its check.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	CheckOK       CheckResult = "ok"
	CheckError    CheckResult = "error"
	CheckNotReady CheckResult = "not_ready"
)

// Report aggregates health check results.
type Report struct {
	Status    Status
	Ready     bool
	Documents int
	Chunks    int
	Checks    map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	index     Readiness
	embedding EmbeddingChecker
	cache     Pinger
}

// New creates a Service. embedding and cache can be nil.
func New(index Readiness, embedding EmbeddingChecker, cache Pinger) *Service {
	return &Service{index: index, embedding: embedding, cache: cache}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{
		Ready:  s.index.IsReady(),
		Checks: make(map[string]CheckResult, 3),
	}

	if r.Ready {
		r.Documents = s.index.DocumentCount()
		r.Chunks = s.index.ChunkCount()
		r.Checks["index"] = CheckOK
	} else {
		r.Checks["index"] = CheckNotReady
	}

	if s.embedding != nil {
		r.Checks["embedding"] = result(s.embedding.HealthCheck(ctx))
	}
	if s.cache != nil {
		r.Checks["cache"] = result(s.cache.Ping(ctx))
	}

	switch {
	case !r.Ready:
		r.Status = Starting
	case failed(r.Checks):
		r.Status = Degraded
	default:
		r.Status = Healthy
	}
	return r
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}

func failed(checks map[string]CheckResult) bool {
	for _, v := range checks {
		if v == CheckError {
			return true
		}
	}
	return false
}
