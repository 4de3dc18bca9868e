package retrieval

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/kailas-cloud/passage/internal/domain"
)

// Gate holds the service once it is built. Until Set is called every
// question fails with domain.ErrNotReady.
type Gate struct {
	svc atomic.Pointer[Service]
}

// Set publishes a built service. Later calls replace it.
func (g *Gate) Set(s *Service) { g.svc.Store(s) }

// Service returns the published service, or nil.
func (g *Gate) Service() *Service { return g.svc.Load() }

// IsReady reports whether a service has been published.
func (g *Gate) IsReady() bool { return g.svc.Load().IsReady() }

// DocumentCount returns 0 until ready.
func (g *Gate) DocumentCount() int {
	if s := g.svc.Load(); s != nil {
		return s.DocumentCount()
	}
	return 0
}

// ChunkCount returns 0 until ready.
func (g *Gate) ChunkCount() int {
	if s := g.svc.Load(); s != nil {
		return s.ChunkCount()
	}
	return 0
}

// Answer delegates to the published service.
func (g *Gate) Answer(ctx context.Context, question string) (Answer, error) {
	s := g.svc.Load()
	if s == nil {
		return Answer{}, fmt.Errorf("index is still building: %w", domain.ErrNotReady)
	}
	return s.Answer(ctx, question)
}
