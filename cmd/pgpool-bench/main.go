// Command pgpool-bench exercises internal/pool end to end against a real
// PostgreSQL endpoint: it builds a Pool from environment configuration,
// fires a configurable number of concurrent SELECT 1 queries through it,
// serves /metrics and /health on a side HTTP port, and shuts down
// gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/kevin07696/pgpool/internal/config"
	"github.com/kevin07696/pgpool/internal/pgxconn"
	"github.com/kevin07696/pgpool/internal/pool"
	"github.com/kevin07696/pgpool/internal/secrets"
	"github.com/kevin07696/pgpool/pkg/observability"
	"github.com/kevin07696/pgpool/pkg/shutdown"
)

func main() {
	logger := initLogger()
	defer logger.Sync()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	password, err := resolvePassword(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to resolve database password", zap.Error(err))
	}

	dsn := cfg.Database.DSN(password)
	queryTimeout := time.Duration(cfg.Pool.QueryTimeoutMillis) * time.Millisecond
	statementTimeout := time.Duration(cfg.Pool.StatementTimeoutMillis) * time.Millisecond

	p := pool.New(pool.NewOptions(
		pgxconn.New(dsn, statementTimeout),
		pool.WithPoolSize(cfg.Pool.PoolSize),
		pool.WithIdleTimeoutMillis(cfg.Pool.IdleTimeoutMillis),
		pool.WithWaitForAvailableConnectionTimeoutMillis(cfg.Pool.WaitForAvailableConnectionTimeoutMillis),
		pool.WithConnectionTimeoutMillis(cfg.Pool.ConnectionTimeoutMillis),
		pool.WithRetryConnection(cfg.Pool.RetryConnectionMaxRetries, cfg.Pool.RetryConnectionWaitMillis, nil),
		pool.WithDatabaseStartupRetry(true, cfg.Pool.RetryConnectionWaitMillis, cfg.Pool.DatabaseStartupTimeoutMillis),
		pool.WithReadOnlyTransactionRetry(true, cfg.Pool.RetryConnectionWaitMillis, cfg.Pool.ReadOnlyTransactionReconnectTimeoutMillis),
		pool.WithConnectionErrorRetry(true, cfg.Pool.RetryConnectionWaitMillis, cfg.Pool.ConnectionReconnectTimeoutMillis),
		pool.WithQueryTimeout(queryTimeout),
		pool.WithStatementTimeout(statementTimeout),
		pool.WithLogger(logger),
		pool.WithEvents(pool.EventHandlers{
			Error: func(err error, connectionID string) {
				logger.Warn("pool reported an asynchronous error", zap.Error(err), zap.String("connection_id", connectionID))
			},
		}),
	))

	inFlight := shutdown.NewInFlightTracker("bench-queries", logger)

	statsLogger := shutdown.NewPeriodicWorker("pool-stats", 15*time.Second, logger)
	statsLogger.Start(func(ctx context.Context) {
		stats := p.Stats()
		logger.Info("pool stats",
			zap.Int("total", stats.Total),
			zap.Int("idle", stats.Idle),
			zap.Int("waiting", stats.Waiting),
		)
	})

	// Registration order is the shutdown manager's reverse-shutdown order:
	// the pool is registered first so it shuts down LAST, after the
	// stats logger and in-flight tracker have stopped and the metrics
	// server has stopped taking scrapes.
	shutdownMgr := shutdown.NewManager(logger, 30*time.Second)
	shutdownMgr.Register("pool", p.Shutdown)
	shutdownMgr.Register("pool-stats", statsLogger.Shutdown)
	shutdownMgr.Register("bench-queries", inFlight.Shutdown)

	health := observability.NewHealthChecker(p)
	metricsServer := observability.StartMetricsServer(getEnv("PGPOOL_METRICS_PORT", "9090"), p.MetricsRegistry(), health)
	shutdownMgr.RegisterFunc("metrics-server", func() error { return observability.ShutdownMetricsServer(metricsServer) })

	concurrency := getEnvAsInt("PGPOOL_BENCH_CONCURRENCY", 20)
	total := getEnvAsInt("PGPOOL_BENCH_QUERIES", 1000)
	logger.Info("starting query load",
		zap.Int("concurrency", concurrency),
		zap.Int("total_queries", total),
		zap.Int("pool_size", cfg.Pool.PoolSize),
	)

	// The load runs in the background so a SIGINT/SIGTERM received while it
	// is still running is handled by the shutdown manager.
	go func() {
		runLoad(context.Background(), p, logger, inFlight, concurrency, total)

		stats := p.Stats()
		logger.Info("load complete",
			zap.Int("total", stats.Total),
			zap.Int("idle", stats.Idle),
			zap.Int("waiting", stats.Waiting),
		)
	}()

	shutdownMgr.WaitForShutdown()
}

// runLoad fires total queries across concurrency workers. Each query runs
// as tracked in-flight work so a SIGINT mid-run waits for outstanding
// queries to land before the pool is shut down, rather than abandoning
// them. Failure logging is rate-limited so a sustained outage doesn't
// flood stdout with one warning per query.
func runLoad(ctx context.Context, p *pool.Pool, logger *zap.Logger, inFlight *shutdown.InFlightTracker, concurrency, total int) {
	var wg sync.WaitGroup
	jobs := make(chan int, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	failureLogLimiter := rate.NewLimiter(rate.Every(time.Second), 5)

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				inFlight.RunWithContext(ctx, func(ctx context.Context) {
					qCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
					defer cancel()
					if _, err := p.Query(qCtx, "SELECT 1", nil); err != nil && failureLogLimiter.Allow() {
						logger.Warn("query failed", zap.Error(err))
					}
				})
			}
		}()
	}
	wg.Wait()
}

func resolvePassword(ctx context.Context, cfg *config.Config, logger *zap.Logger) (string, error) {
	switch cfg.Secrets.Provider {
	case "":
		return cfg.Database.Password, nil
	case "aws":
		resolver, err := secrets.NewAWSResolver(ctx, secrets.AWSConfig{
			Region:   cfg.Secrets.AWSRegion,
			CacheTTL: 5 * time.Minute,
		}, logger)
		if err != nil {
			return "", err
		}
		return resolver.Resolve(ctx, cfg.Secrets.Path)
	case "vault":
		resolver, err := secrets.NewVaultResolver(secrets.VaultConfig{
			Address:  cfg.Secrets.VaultAddress,
			Token:    cfg.Secrets.VaultToken,
			CacheTTL: 5 * time.Minute,
		}, logger)
		if err != nil {
			return "", err
		}
		return resolver.Resolve(ctx, cfg.Secrets.Path)
	default:
		return "", fmt.Errorf("unknown secrets provider %q", cfg.Secrets.Provider)
	}
}

func initLogger() *zap.Logger {
	env := getEnv("PGPOOL_ENV", "development")
	if env == "production" {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		logger, _ := zapCfg.Build()
		return logger
	}
	logger, _ := zap.NewDevelopment()
	return logger
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}
