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

	"github.com/searchstack/textsearchd/internal/analytics"
	"github.com/searchstack/textsearchd/internal/builder"
	"github.com/searchstack/textsearchd/internal/docstore"
	"github.com/searchstack/textsearchd/internal/index"
	"github.com/searchstack/textsearchd/internal/scanner"
	"github.com/searchstack/textsearchd/internal/search"
	"github.com/searchstack/textsearchd/internal/server"
	"github.com/searchstack/textsearchd/internal/tokenizer"
	"github.com/searchstack/textsearchd/pkg/config"
	"github.com/searchstack/textsearchd/pkg/health"
	"github.com/searchstack/textsearchd/pkg/kafka"
	"github.com/searchstack/textsearchd/pkg/logger"
	"github.com/searchstack/textsearchd/pkg/metrics"
	"github.com/searchstack/textsearchd/pkg/middleware"
	"github.com/searchstack/textsearchd/pkg/postgres"
	pkgredis "github.com/searchstack/textsearchd/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting textsearchd",
		"port", cfg.Server.Port,
		"shards", cfg.Index.Shards,
		"dataset", cfg.Builder.DatasetPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix := index.New(cfg.Index.Shards)
	store := docstore.New()
	tok := tokenizer.New(tokenizer.Config{
		ToLower:     cfg.Tokenizer.ToLower,
		KeepDigits:  cfg.Tokenizer.KeepDigits,
		MinTokenLen: cfg.Tokenizer.MinTokenLen,
		MaxTokenLen: cfg.Tokenizer.MaxTokenLen,
	})
	sc := scanner.New(scanner.Config{
		Recursive: cfg.Builder.Recursive,
		TxtOnly:   cfg.Builder.TxtOnly,
		MaxFiles:  cfg.Builder.MaxFiles,
	})
	b := builder.New(ix, store, tok, sc)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdownMetrics(sctx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	var redisClient *pkgredis.Client
	var queryCache *search.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = search.NewQueryCache(redisClient, cfg.Redis)
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000)
		collector.Start(ctx)
		defer collector.Close()
	}

	var history *server.BuildHistory
	var pgClient *postgres.Client
	if cfg.Postgres.Enabled {
		pgClient, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, build history disabled", "error", err)
		} else {
			defer pgClient.Close()
			history = server.NewBuildHistory(pgClient)
			if err := history.EnsureSchema(ctx); err != nil {
				slog.Warn("build history schema setup failed", "error", err)
				history = nil
			}
		}
	}

	searcher := search.NewService(tok, ix, store).
		WithCache(queryCache).
		WithMetrics(m).
		WithCollector(collector)

	jobs := server.NewJobManager(b, ix, cfg.Builder.DatasetPath, cfg.Builder.Workers).
		WithMetrics(m).
		WithCache(queryCache).
		WithCollector(collector).
		WithHistory(history)

	sched := server.NewScheduler(jobs, cfg.Scheduler.Enabled, cfg.Scheduler.Interval)
	go sched.Run(ctx)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) error {
		// Stats takes every shard lock in turn; returning means the index
		// is serving.
		ix.Stats()
		return nil
	})
	if cfg.Redis.Enabled {
		checker.RegisterOptional("redis", func(ctx context.Context) error {
			if redisClient == nil {
				return errors.New("not connected")
			}
			return redisClient.Ping(ctx)
		})
	}
	if pgClient != nil {
		checker.RegisterOptional("postgres", func(ctx context.Context) error {
			return pgClient.DB.PingContext(ctx)
		})
	}

	h := server.NewHandler(searcher, jobs, sched, ix, checker, cfg.Search.DefaultTopK, cfg.Search.MaxTopK)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID()(chain)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Builder.DatasetPath != "" {
		if err := jobs.Start(cfg.Builder.DatasetPath, cfg.Builder.Workers, false); err != nil {
			slog.Error("initial build failed to start", "error", err)
		}
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("textsearchd listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("textsearchd stopped")
}
