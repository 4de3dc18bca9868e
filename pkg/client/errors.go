package client

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by APIError. Use errors.Is() to check.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrNotReady         = errors.New("service not ready")
	ErrTimeout          = errors.New("query timed out")
	ErrQuotaExceeded    = errors.New("embedding quota exceeded")
	ErrEmbeddingFailure = errors.New("embedding provider error")
	ErrServer           = errors.New("server error")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// Answer is the human-readable text the service suggests showing instead of a passage.
	Answer string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("passage: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("passage: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the error code to a sentinel.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "bad_request":
		return ErrBadRequest
	case "not_ready":
		return ErrNotReady
	case "timeout":
		return ErrTimeout
	case "embedding_quota_exceeded":
		return ErrQuotaExceeded
	case "embedding_provider_error":
		return ErrEmbeddingFailure
	}
	return ErrServer
}
