package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/passage/internal/domain"
)

// BudgetAction defines behavior when the token budget is exhausted.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but lets the request through.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject fails the request with domain.ErrEmbeddingQuotaExceeded.
	BudgetActionReject BudgetAction = "reject"
)

// BudgetLimits configures a BudgetTracker. Zero limits mean unlimited.
type BudgetLimits struct {
	Provider string
	Daily    int64
	Monthly  int64
	Action   BudgetAction
}

// BudgetTracker keeps daily and monthly token counters in memory and,
// when a store is attached, mirrors every increment into it so counters
// survive restarts. Check never touches the store.
type BudgetTracker struct {
	mu      sync.Mutex
	limits  BudgetLimits
	daily   int64
	monthly int64
	day     time.Time
	month   time.Time
	now     func() time.Time
	store   BudgetStore
	logger  *zap.Logger
}

// NewBudgetTracker creates a tracker with the given limits.
func NewBudgetTracker(limits BudgetLimits, logger *zap.Logger) *BudgetTracker {
	if limits.Action == "" {
		limits.Action = BudgetActionWarn
	}
	b := &BudgetTracker{
		limits: limits,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
	b.day, b.month = periods(b.now())
	return b
}

// WithStore attaches a persistence store and loads the current period's counters from it.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	b.rollover()

	if val, err := store.Get(ctx, b.dailyKey(b.day)); err == nil {
		b.daily = val
	} else {
		b.logger.Warn("Failed to load daily budget", zap.Error(err))
	}
	if val, err := store.Get(ctx, b.monthlyKey(b.month)); err == nil {
		b.monthly = val
	} else {
		b.logger.Warn("Failed to load monthly budget", zap.Error(err))
	}

	b.logger.Info("Budget loaded",
		zap.String("provider", b.limits.Provider),
		zap.Int64("daily_used", b.daily),
		zap.Int64("monthly_used", b.monthly),
	)
	return b
}

func (b *BudgetTracker) dailyKey(day time.Time) string {
	return fmt.Sprintf("%sbudget:%s:daily:%s", domain.KeyPrefix, b.limits.Provider, day.Format(time.DateOnly))
}

func (b *BudgetTracker) monthlyKey(month time.Time) string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s", domain.KeyPrefix, b.limits.Provider, month.Format("2006-01"))
}

// Check reports whether a new provider call is allowed.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()
	if !exhausted(b.daily, b.limits.Daily) && !exhausted(b.monthly, b.limits.Monthly) {
		return nil
	}
	if b.limits.Action == BudgetActionReject {
		return domain.ErrEmbeddingQuotaExceeded
	}

	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.limits.Provider),
		zap.Int64("daily_used", b.daily),
		zap.Int64("daily_limit", b.limits.Daily),
		zap.Int64("monthly_used", b.monthly),
		zap.Int64("monthly_limit", b.limits.Monthly),
	)
	return nil
}

// Record adds consumed tokens to both counters.
func (b *BudgetTracker) Record(tokens int64) {
	b.mu.Lock()
	b.rollover()
	b.daily += tokens
	b.monthly += tokens
	store := b.store
	dailyKey, monthlyKey := b.dailyKey(b.day), b.monthlyKey(b.month)
	b.mu.Unlock()

	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := store.IncrBy(ctx, dailyKey, tokens); err != nil {
		b.logger.Warn("Failed to persist daily budget", zap.String("key", dailyKey), zap.Error(err))
	}
	if err := store.IncrBy(ctx, monthlyKey, tokens); err != nil {
		b.logger.Warn("Failed to persist monthly budget", zap.String("key", monthlyKey), zap.Error(err))
	}
}

// RemainingDaily returns tokens left today, -1 when unlimited.
func (b *BudgetTracker) RemainingDaily() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return remaining(b.daily, b.limits.Daily)
}

// RemainingMonthly returns tokens left this month, -1 when unlimited.
func (b *BudgetTracker) RemainingMonthly() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return remaining(b.monthly, b.limits.Monthly)
}

// DailyLimit returns the daily token limit, 0 when unlimited.
func (b *BudgetTracker) DailyLimit() int64 { return b.limits.Daily }

// MonthlyLimit returns the monthly token limit, 0 when unlimited.
func (b *BudgetTracker) MonthlyLimit() int64 { return b.limits.Monthly }

// DailyUsed returns tokens consumed today.
func (b *BudgetTracker) DailyUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.daily
}

// MonthlyUsed returns tokens consumed this month.
func (b *BudgetTracker) MonthlyUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.monthly
}

// rollover zeroes counters when the day or month changes. Caller holds mu.
func (b *BudgetTracker) rollover() {
	day, month := periods(b.now())
	if day.After(b.day) {
		b.daily = 0
		b.day = day
	}
	if month.After(b.month) {
		b.monthly = 0
		b.month = month
	}
}

func periods(t time.Time) (day, month time.Time) {
	day = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	month = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return day, month
}

func exhausted(used, limit int64) bool {
	return limit > 0 && used >= limit
}

func remaining(used, limit int64) int64 {
	if limit == 0 {
		return -1
	}
	return max(limit-used, 0)
}
