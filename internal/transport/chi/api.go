package chi

// ErrorCode is a machine-readable error code in error responses.
type ErrorCode string

const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeNotReady               ErrorCode = "not_ready"
	CodeTimeout                ErrorCode = "timeout"
	CodeEmbeddingQuotaExceeded ErrorCode = "embedding_quota_exceeded"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeVectorDimMismatch      ErrorCode = "vector_dim_mismatch"
	CodeInternalError          ErrorCode = "internal_error"
)

// Human-readable answers returned alongside error codes, so chat clients
// can show the answer field unconditionally.
const (
	AnswerBadRequest = "Please provide a question."
	AnswerNotReady   = "The knowledge base is still loading. Please try again shortly."
	AnswerFailed     = "Sorry, there was an error processing your question. Please try again."
)

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Question string `json:"question"`
}

// QueryResponse is the success body of POST /api/query.
type QueryResponse struct {
	Answer string `json:"answer"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Answer  string    `json:"answer,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string            `json:"status"`
	VectorstoreReady bool              `json:"vectorstore_ready"`
	TotalDocuments   int               `json:"total_documents"`
	TotalChunks      int               `json:"total_chunks"`
	Checks           map[string]string `json:"checks,omitempty"`
	Version          string            `json:"version"`
}

// UsageResponse is the body of GET /api/usage. Timestamps are unix millis.
type UsageResponse struct {
	Period          string `json:"period"`
	PeriodStart     int64  `json:"period_start"`
	PeriodEnd       int64  `json:"period_end"`
	Tracked         bool   `json:"tracked"`
	TokensUsed      int64  `json:"tokens_used"`
	TokensLimit     int64  `json:"tokens_limit"`
	TokensRemaining int64  `json:"tokens_remaining"`
	Exhausted       bool   `json:"exhausted"`
}
