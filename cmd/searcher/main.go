// Command searcher serves the school search API.
//
// It loads the school dataset once at startup (from a JSON file or the
// schools table), then answers free-text searches, query parses, school
// profiles and result summaries. Redis caching and Kafka analytics are
// optional and degrade independently.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andrewoneill45-ctrl/school-profile/internal/analytics"
	"github.com/andrewoneill45-ctrl/school-profile/internal/dataset"
	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/cache"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/executor"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/handler"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/config"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/health"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/kafka"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/logger"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/metrics"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/middleware"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/postgres"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/ratelimit"
	pkgredis "github.com/andrewoneill45-ctrl/school-profile/pkg/redis"
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
	slog.Info("starting search service", "port", cfg.Server.Port, "dataset_source", cfg.Dataset.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	var db *postgres.Client
	if cfg.Postgres.Enabled {
		db, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	schools, err := loadSchools(ctx, cfg, db)
	if err != nil {
		slog.Error("failed to load dataset", "error", err)
		os.Exit(1)
	}
	ds := dataset.New(schools)
	m.DatasetSchools.Set(float64(ds.Len()))
	slog.Info("dataset loaded",
		"schools", ds.Len(),
		"excluded", ds.ExcludedCount(),
		"source", cfg.Dataset.Source,
	)

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var tracker handler.Tracker
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, cfg.Analytics)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector
		slog.Info("analytics collector enabled", "topic", cfg.Kafka.Topics.SearchEvents)
	}

	var exec handler.SearchExecutor = executor.New(ds)
	if cfg.Search.Shards > 1 {
		sharded := executor.NewSharded(ds, cfg.Search.Shards)
		exec = sharded
		slog.Info("sharded search enabled", "shards", sharded.Shards())
	}

	checker := health.NewChecker()
	checker.Register("dataset", func(ctx context.Context) health.ComponentHealth {
		if ds.Len() == 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no schools loaded"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d schools", ds.Len())}
	})
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient.Ping, health.StatusDegraded))
	}
	if db != nil {
		checker.Register("postgres", health.Ping(db.Ping, health.StatusDegraded))
	}

	h := handler.New(ds, exec, queryCache, tracker, m, cfg.Search)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, time.Minute)
		defer limiter.Close()
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

func loadSchools(ctx context.Context, cfg *config.Config, db *postgres.Client) ([]school.School, error) {
	if cfg.Dataset.Source == config.SourcePostgres {
		return dataset.LoadPostgres(ctx, db, cfg.Dataset.LoadAttempts)
	}
	return dataset.LoadFile(cfg.Dataset.Path)
}
