// Command hc-server serves High Court case lookups over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/and161185/hcservices/internal/cache"
	"github.com/and161185/hcservices/internal/cache/pgstore"
	"github.com/and161185/hcservices/internal/cache/redisstore"
	"github.com/and161185/hcservices/internal/config"
	"github.com/and161185/hcservices/internal/gateway"
	"github.com/and161185/hcservices/internal/metrics"
	"github.com/and161185/hcservices/internal/migrate"
	httpserver "github.com/and161185/hcservices/internal/server/http"
	"github.com/and161185/hcservices/internal/service"
	"github.com/and161185/hcservices/internal/suggest"
	"github.com/and161185/hcservices/internal/transport"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const purgeEvery = 10 * time.Minute

// main loads configuration, wires the gateway client behind the query cache and serves HTTP.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.DatabaseDSN, "dsn", cfg.DatabaseDSN, "PostgreSQL DSN for the shared query cache")
	flag.StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "Redis URL for the shared query cache (wins over -dsn)")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "development logging")
	flag.Parse()

	logger, _ := zap.NewProduction()
	if cfg.Debug {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tier, closeTier := openTier(ctx, cfg, logger)
	defer closeTier()

	// Gateway
	opts := cfg.GatewayOptions(logger, m)
	opts.HTTPClient = transport.NewClient(logger, nil, 0)
	auth := gateway.NewAuthenticator(cfg.Credentials, opts)
	client := gateway.NewClient(cfg.Credentials, auth, opts)

	// Services
	lookup := service.NewCachedLookup(service.NewLookupService(client, logger), service.CacheOptions{
		TTL:     cfg.CacheTTL,
		Tier:    tier,
		Logger:  logger,
		Metrics: m,
	})
	h := httpserver.New(lookup, suggest.NewDebouncer(cfg.SuggestDelay), reg, logger)
	srv := httpserver.NewServer(cfg.Addr, h.Router())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}

// openTier connects the optional shared cache tier. Redis wins when both are configured.
func openTier(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.Tier, func()) {
	switch {
	case cfg.RedisURL != "":
		rdb, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		logger.Info("cache tier", zap.String("backend", "redis"))
		return redisstore.New(rdb, redisstore.DefaultPrefix), func() { _ = rdb.Close() }

	case cfg.DatabaseDSN != "":
		if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		st, err := pgstore.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("pgstore", zap.Error(err))
		}
		logger.Info("cache tier", zap.String("backend", "postgres"))
		go purge(ctx, st, logger)
		return st, st.Close
	}
	return nil, func() {}
}

// purge drops expired query_cache rows until ctx ends.
func purge(ctx context.Context, st *pgstore.Store, logger *zap.Logger) {
	t := time.NewTicker(purgeEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := st.Purge(ctx)
			if err != nil {
				logger.Warn("cache purge", zap.Error(err))
				continue
			}
			logger.Debug("cache purge", zap.Int64("rows", n))
		}
	}
}
