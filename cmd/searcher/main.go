package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashedsearch/retrieval-platform/internal/catalog"
	"github.com/hashedsearch/retrieval-platform/internal/events"
	"github.com/hashedsearch/retrieval-platform/internal/searcher/cache"
	"github.com/hashedsearch/retrieval-platform/internal/searcher/handler"
	"github.com/hashedsearch/retrieval-platform/internal/searcher/loader"
	"github.com/hashedsearch/retrieval-platform/pkg/config"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
	"github.com/hashedsearch/retrieval-platform/pkg/health"
	"github.com/hashedsearch/retrieval-platform/pkg/kafka"
	"github.com/hashedsearch/retrieval-platform/pkg/logger"
	"github.com/hashedsearch/retrieval-platform/pkg/metrics"
	"github.com/hashedsearch/retrieval-platform/pkg/middleware"
	"github.com/hashedsearch/retrieval-platform/pkg/postgres"
	pkgredis "github.com/hashedsearch/retrieval-platform/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting searcher",
		"port", cfg.Server.Port,
		"partitions", cfg.Index.NumPartitions,
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *catalog.Store
	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, falling back to artifact directory scan", "error", err)
	} else {
		defer pgClient.Close()
		store, err = catalog.NewStore(ctx, pgClient)
		if err != nil {
			slog.Warn("build catalog unavailable", "error", err)
			store = nil
		}
	}

	ld := loader.New(cfg.Index, cfg.Search, store)
	if err := ld.Load(ctx); err != nil {
		if errors.Is(err, apperrors.ErrBuildNotFound) {
			slog.Warn("no index artifact found yet, waiting for first build")
		} else {
			slog.Error("failed to load index", "error", err)
			os.Exit(1)
		}
	}
	if m != nil {
		m.ActivePartitions.Set(float64(cfg.Index.NumPartitions))
	}

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, query caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis)
		slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	collector := events.NewCollector(kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents), 10000)
	collector.Start(ctx)
	defer collector.Close()

	// Hot-swap on completed builds; stale cache entries are flushed so the
	// old index's rankings cannot be served against the new one.
	reload := ld.ReloadHandler()
	reloadConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete,
		func(ctx context.Context, key []byte, value []byte) error {
			if err := reload(ctx, key, value); err != nil {
				return err
			}
			if queryCache != nil {
				if err := queryCache.Invalidate(ctx); err != nil {
					slog.Error("cache invalidation after index swap failed", "error", err)
				}
			}
			return nil
		})
	go func() {
		if err := reloadConsumer.Start(ctx); err != nil {
			slog.Error("index reload consumer error", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if _, err := ld.Scorer(); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no index loaded"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents", ld.DocCount()),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := handler.New(ld, queryCache, collector, m, cfg.Search.DefaultK, cfg.Search.MaxK)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("searcher listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("searcher stopped")
}
