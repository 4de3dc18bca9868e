// Package chi exposes the question answering API over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/passage/internal/domain"
	domusage "github.com/kailas-cloud/passage/internal/domain/usage"
	"github.com/kailas-cloud/passage/internal/logger"
	healthuc "github.com/kailas-cloud/passage/internal/usecase/health"
	"github.com/kailas-cloud/passage/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/passage/internal/usecase/usage"
	"github.com/kailas-cloud/passage/internal/version"
)

const maxQueryBodyBytes = 1 << 20

// Answerer resolves a question to a passage.
type Answerer interface {
	Answer(ctx context.Context, question string) (retrieval.Answer, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the HTTP API.
type Server struct {
	answerer      Answerer
	health        *healthuc.Service
	usage         *usageuc.Service
	queryTimeout  time.Duration
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. A zero queryTimeout leaves the request context as is.
func NewServer(
	answerer Answerer,
	health *healthuc.Service,
	usage *usageuc.Service,
	queryTimeout time.Duration,
	logger *zap.Logger,
) *Server {
	s := &Server{
		answerer:     answerer,
		health:       health,
		usage:        usage,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
	// Order matters: provider errors caused by the deadline report as timeouts.
	s.errorHandlers = []errorHandler{
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout, AnswerFailed),
		sentinelHandler(domain.ErrNotReady, http.StatusServiceUnavailable, CodeNotReady, AnswerNotReady),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded,
			http.StatusPaymentRequired, CodeEmbeddingQuotaExceeded, AnswerFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, CodeEmbeddingProviderError, AnswerFailed),
		sentinelHandler(domain.ErrVectorDimMismatch,
			http.StatusInternalServerError, CodeVectorDimMismatch, AnswerFailed),
	}
	return s
}

// Query handles POST /api/query. A missing body or question is answered
// with the no-question text, not rejected.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body", AnswerBadRequest)
		return
	}

	ctx := r.Context()
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}
	ctx, usage := domain.NewContextWithUsage(ctx)

	ans, err := s.answerer.Answer(ctx, req.Question)
	setEmbeddingHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Debug("query answered",
		zap.String("outcome", string(ans.Status)),
		zap.Float64("distance", ans.Distance),
	)
	writeJSON(w, http.StatusOK, QueryResponse{Answer: ans.Text})
}

// HealthCheck handles GET /health. It answers 503 until the index is ready.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if !report.Ready {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:           string(report.Status),
		VectorstoreReady: report.Ready,
		TotalDocuments:   report.Documents,
		TotalChunks:      report.Chunks,
		Checks:           checks,
		Version:          version.Version,
	})
}

// GetUsage handles GET /api/usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "period must be day or month", "")
		return
	}

	report := s.usage.GetReport(r.Context(), period)
	writeJSON(w, http.StatusOK, UsageResponse{
		Period:          string(report.Period),
		PeriodStart:     report.Start.UnixMilli(),
		PeriodEnd:       report.End.UnixMilli(),
		Tracked:         report.Tracked,
		TokensUsed:      report.TokensUsed,
		TokensLimit:     report.TokensLimit,
		TokensRemaining: report.TokensRemaining,
		Exhausted:       report.Exhausted(),
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage.Used() {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message, answer string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
		Answer:  answer,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		context.DeadlineExceeded,
		domain.ErrNotReady,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrEmbeddingProviderError,
		domain.ErrVectorDimMismatch,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode, answer string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg, answer)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.logger.With(zap.String("request_id", chiMiddleware.GetReqID(r.Context())))
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error", AnswerFailed)
}
