package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/passage/internal/config"
	"github.com/kailas-cloud/passage/internal/db"
	"github.com/kailas-cloud/passage/internal/domain"
	"github.com/kailas-cloud/passage/internal/metrics"
	budgetrepo "github.com/kailas-cloud/passage/internal/repository/budget"
	"github.com/kailas-cloud/passage/internal/repository/embcache"
	"github.com/kailas-cloud/passage/internal/transport/hashing"
	openaiEmb "github.com/kailas-cloud/passage/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/passage/internal/usecase/embedding"
)

// buildBudget always returns a tracker so usage is counted even without
// limits. Zero limits never block.
func buildBudget(
	ctx context.Context,
	cfg config.EmbeddingConfig,
	store db.Store,
	logger *zap.Logger,
) *embeddinguc.BudgetTracker {
	budget := embeddinguc.NewBudgetTracker(embeddinguc.BudgetLimits{
		Provider: cfg.Provider,
		Daily:    cfg.Budget.DailyTokenLimit,
		Monthly:  cfg.Budget.MonthlyTokenLimit,
		Action:   embeddinguc.BudgetAction(cfg.Budget.Action),
	}, logger)

	// Counters survive restarts only when the cache store is up.
	if store != nil {
		budget.WithStore(ctx, budgetrepo.New(store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
	}
	return budget
}

// buildEmbedder assembles the decorator chain: provider -> cached -> instrumented -> instruction.
func buildEmbedder(
	cfg config.EmbeddingConfig,
	cacheCfg config.CacheConfig,
	instruction string,
	store db.Store,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) domain.Embedder {
	var embedder domain.Embedder
	switch cfg.Provider {
	case "hashing":
		embedder = hashing.NewEmbedder(cfg.Dimensions)
	default:
		embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Provider:   cfg.Provider,
			Logger:     logger,
		})
	}

	if store != nil {
		embedder = embcache.New(embedder, store, embcache.Options{
			Namespace:  fmt.Sprintf("%s/%s/%d", cfg.Provider, cfg.Model, cfg.Dimensions),
			TTL:        time.Duration(cacheCfg.TTLHours) * time.Hour,
			CacheTotal: metrics.EmbeddingCacheTotal,
			Logger:     logger,
		})
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, embeddinguc.Options{
		Provider:     cfg.Provider,
		Model:        cfg.Model,
		MaxBatchSize: cfg.MaxBatchSize,
		Budget:       budget,
		Logger:       logger,
	})

	// Outermost, so the cache key includes the instruction.
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

// embeddingHealthChecker adapts domain.Embedder to health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
