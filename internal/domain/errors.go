package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad signals an unreadable or malformed knowledge base.
	ErrLoad = errors.New("knowledge base load failed")
	// ErrIndex signals entries that cannot form an index.
	ErrIndex = errors.New("invalid index")
	// ErrQuery signals invalid index query parameters.
	ErrQuery = errors.New("invalid query")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidChunking signals chunk size/overlap outside 0 <= overlap < size.
	ErrInvalidChunking = errors.New("invalid chunking parameters")
	// ErrNotReady signals that the index has not been built yet.
	ErrNotReady = errors.New("index not ready")

	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// DimensionError reports which dimensions disagreed. Unwraps to ErrVectorDimMismatch.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", ErrVectorDimMismatch.Error(), e.Want, e.Got)
}

func (e *DimensionError) Unwrap() error { return ErrVectorDimMismatch }

// NewDimensionError creates a dimension mismatch error.
func NewDimensionError(want, got int) error {
	return &DimensionError{Want: want, Got: got}
}
