// Package usage describes embedding token consumption over a budget period.
package usage

import (
	"fmt"
	"time"
)

// Period is the aggregation granularity.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod parses "day" or "month". Empty means month.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodMonth:
		return PeriodMonth, nil
	case PeriodDay:
		return PeriodDay, nil
	}
	return "", fmt.Errorf("unknown usage period %q", s)
}

// Bounds returns the UTC period containing t as [start, end).
func (p Period) Bounds(t time.Time) (start, end time.Time) {
	t = t.UTC()
	if p == PeriodDay {
		start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	}
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Report is the embedding token usage for one period.
type Report struct {
	Period Period
	Start  time.Time
	End    time.Time
	// Tracked is false when no budget is configured and nothing is counted.
	Tracked    bool
	TokensUsed int64
	// TokensLimit is 0 when the period is unlimited.
	TokensLimit int64
	// TokensRemaining is -1 when the period is unlimited.
	TokensRemaining int64
}

// Exhausted reports whether a limited period has no tokens left.
func (r Report) Exhausted() bool {
	return r.TokensLimit > 0 && r.TokensRemaining <= 0
}
