// Command searcher loads a saved index and serves search over HTTP.
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	indexFile := flag.String("index", "", "index file, overrides indexer.indexFile")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	indexPath := cfg.Indexer.IndexPath()
	if *indexFile != "" {
		indexPath = *indexFile
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "index_file", indexPath)

	m := metrics.New(prometheus.DefaultRegisterer)

	engine, err := indexer.Open(indexPath, m)
	if err != nil {
		slog.Error("failed to load index", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		err = resilience.Retry(ctx, "connect-redis", resilience.RetryConfig{MaxAttempts: 3}, func() error {
			var err error
			redisClient, err = pkgredis.NewClient(cfg.Redis, "fieldsearch:")
			return err
		})
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	checker := health.NewChecker()
	checker.Register("index", health.StateCheck(func() (bool, string) {
		if engine.State() != indexer.StateReady {
			return false, engine.State().String()
		}
		store := engine.Store()
		return true, fmt.Sprintf("%d documents, generation %s", store.NumDocs(), store.Generation())
	}))
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping))
	}

	op, _ := query.ParseOp(cfg.Search.DefaultOperator)
	exec := executor.New(engine, executor.Options{
		Fields:          cfg.Search.Fields,
		DefaultOperator: op,
		IDField:         cfg.Search.IDField,
		MaxConcurrent:   cfg.Search.MaxConcurrentQueries,
		Timeout:         cfg.Search.Timeout,
	}, m)
	if queryCache != nil {
		exec.WithCache(queryCache)
	}
	h := handler.New(exec, engine, queryCache, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	if cfg.Metrics.Enabled {
		api := fmt.Sprintf("search API on :%d", cfg.Server.Port)
		endpoints := []metrics.Endpoint{
			{Pattern: "GET /health/live", Description: "liveness", Handler: checker.LiveHandler()},
			{Pattern: "GET /health/ready", Description: "readiness", Handler: checker.ReadyHandler()},
		}
		for _, pattern := range h.Patterns() {
			endpoints = append(endpoints, metrics.Endpoint{Pattern: pattern, Description: api})
		}
		shutdown := metrics.StartServer(cfg.Metrics.Port, endpoints...)
		defer shutdown(context.Background())
	}

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Trace,
		middleware.CORS(middleware.DefaultCORSConfig()),
		middleware.Metrics(m),
		middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst, m),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)

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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
