package health

import "context"

// Readiness exposes the state of the retrieval index.
type Readiness interface {
	IsReady() bool
	DocumentCount() int
	ChunkCount() int
}

// Pinger checks cache store availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
