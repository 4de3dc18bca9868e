package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/passage/internal/config"
	"github.com/kailas-cloud/passage/internal/db"
	dbRedis "github.com/kailas-cloud/passage/internal/db/redis"
	"github.com/kailas-cloud/passage/internal/domain"
	"github.com/kailas-cloud/passage/internal/domain/chunk"
	"github.com/kailas-cloud/passage/internal/index"
	logpkg "github.com/kailas-cloud/passage/internal/logger"
	"github.com/kailas-cloud/passage/internal/metrics"
	"github.com/kailas-cloud/passage/internal/repository/knowledge"
	chiTransport "github.com/kailas-cloud/passage/internal/transport/chi"
	healthuc "github.com/kailas-cloud/passage/internal/usecase/health"
	"github.com/kailas-cloud/passage/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/passage/internal/usecase/usage"
	"github.com/kailas-cloud/passage/internal/version"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting passage API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("knowledge_path", cfg.Knowledge.Path),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	ctx := context.Background()

	// Cache store is optional. Without it embeddings are recomputed on every start.
	var store db.Store
	if cfg.Cache.Enabled {
		store = openStore(ctx, cfg.Cache, logger)
		defer store.Close()
	}

	budget := buildBudget(ctx, cfg.Embedding, store, logger)
	docEmbedder := buildEmbedder(cfg.Embedding, cfg.Cache, cfg.Embedding.DocumentInstruction, store, budget, logger)
	queryEmbedder := buildEmbedder(cfg.Embedding, cfg.Cache, cfg.Embedding.QueryInstruction, store, budget, logger)
	logger.Info("Embedders created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	gate := &retrieval.Gate{}

	// Pass a nil interface, not a typed nil pointer, when the cache is off.
	var cachePinger healthuc.Pinger
	if store != nil {
		cachePinger = store
	}
	healthSvc := healthuc.New(gate, newEmbeddingHealthChecker(queryEmbedder), cachePinger)

	usageSvc := usageuc.New(budget)

	server := chiTransport.NewServer(gate, healthSvc, usageSvc,
		time.Duration(cfg.Retrieval.QueryTimeoutSec)*time.Second, logger)
	router := chiTransport.NewRouter(server, cfg.HTTP.CORSOrigins, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// The listener is up while the index builds: /health reports "starting"
	// and queries get 503 until the gate opens.
	buildCtx, cancelBuild := context.WithCancel(ctx)
	defer cancelBuild()
	go func() {
		svc, err := buildService(buildCtx, cfg, docEmbedder, queryEmbedder, logger)
		if err != nil {
			if buildCtx.Err() != nil {
				return
			}
			logger.Fatal("Failed to build index", zap.Error(err))
		}
		gate.Set(svc)
		logger.Info("Service ready",
			zap.Int("documents", svc.DocumentCount()),
			zap.Int("chunks", svc.ChunkCount()),
		)
	}()

	<-quit
	logger.Info("Received shutdown signal")
	cancelBuild()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildService loads the knowledge base and builds the retrieval index.
func buildService(
	ctx context.Context,
	cfg config.Config,
	docEmbedder, queryEmbedder domain.Embedder,
	logger *zap.Logger,
) (*retrieval.Service, error) {
	ctx = logpkg.ContextWithLogger(ctx, logger)

	docs, err := knowledge.Load(ctx, cfg.Knowledge.Path, cfg.Knowledge.RootKey)
	if err != nil {
		return nil, err
	}

	splitter, err := chunk.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}
	metric, err := index.ParseMetric(cfg.Retrieval.Metric)
	if err != nil {
		return nil, err
	}

	return retrieval.Build(ctx, docs, retrieval.Options{
		Splitter:      splitter,
		Embedder:      docEmbedder,
		QueryEmbedder: queryEmbedder,
		Metric:        metric,
		TopK:          cfg.Retrieval.TopK,
		BatchSize:     cfg.Embedding.MaxBatchSize,
		Logger:        logger,
	})
}

// openStore connects to Redis or Valkey and waits until it answers.
// Both drivers share the rueidis client.
func openStore(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) db.Store {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Addrs,
		Password: cfg.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create cache store",
			zap.String("driver", cfg.Driver), zap.Error(err))
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Cache not ready", zap.String("driver", cfg.Driver), zap.Error(err))
	}
	logger.Info("Connected to cache",
		zap.String("driver", cfg.Driver),
		zap.Strings("addrs", cfg.Addrs),
	)
	return store
}
