package usage

import domusage "github.com/kailas-cloud/passage/internal/domain/usage"

// DailyBudget reports the current UTC day. A limit of 0 means no daily
// cap, in which case RemainingDaily returns -1.
type DailyBudget interface {
	DailyLimit() int64
	DailyUsed() int64
	RemainingDaily() int64
}

// MonthlyBudget reports the current UTC month with the same conventions.
type MonthlyBudget interface {
	MonthlyLimit() int64
	MonthlyUsed() int64
	RemainingMonthly() int64
}

// BudgetReader is what the embedding budget tracker exposes to reporting.
type BudgetReader interface {
	DailyBudget
	MonthlyBudget
}

// meter is one period's view of a BudgetReader.
type meter struct {
	limit, used, remaining func() int64
}

func meterFor(br BudgetReader, period domusage.Period) meter {
	if period == domusage.PeriodDay {
		return meter{br.DailyLimit, br.DailyUsed, br.RemainingDaily}
	}
	return meter{br.MonthlyLimit, br.MonthlyUsed, br.RemainingMonthly}
}
