// Package usage reports embedding token consumption against the budget.
package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/passage/internal/domain/usage"
)

// Service handles usage reporting.
type Service struct {
	br  BudgetReader
	now func() time.Time
}

// New creates a Service. br can be nil when no budget is configured.
func New(br BudgetReader) *Service {
	return &Service{br: br, now: time.Now}
}

// GetReport builds a usage report for the current period.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	start, end := period.Bounds(s.now())
	r := domusage.Report{
		Period:          period,
		Start:           start,
		End:             end,
		TokensRemaining: -1,
	}
	if s.br == nil {
		return r
	}

	r.Tracked = true
	m := meterFor(s.br, period)
	r.TokensLimit = m.limit()
	r.TokensUsed = m.used()
	r.TokensRemaining = m.remaining()
	return r
}
