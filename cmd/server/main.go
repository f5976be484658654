/*
main.go - Application entry point

PURPOSE:

	Initializes and starts the asset depreciation server. Handles
	configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
 1. Load .env (optional) and configuration
 2. Build the zap logger
 3. Initialize SQLite store
 4. Pick the default finance book cache (memory or redis)
 5. Wire schedule builder, lifecycle, posting engine and assets service
 6. Configure HTTP router with Prometheus metrics
 7. Start the depreciation scheduler and the server

CONFIGURATION:

	See config/config.go. Every key can be set through ASSETS_* variables,
	for example ASSETS_DATABASE_PATH=":memory:" or
	ASSETS_DEPRECIATION_AUTOMATICPOSTINGENABLED=true.

GRACEFUL SHUTDOWN:

	On SIGINT/SIGTERM:
	1. Stop the scheduler (waits for a running sweep)
	2. Stop accepting new connections
	3. Wait for active requests to complete (HTTP.ShutdownTimeout)
	4. Close cache and database connection

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background sweeps
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/warp/asset-engine/api"
	"github.com/warp/asset-engine/assets"
	"github.com/warp/asset-engine/cache"
	"github.com/warp/asset-engine/config"
	"github.com/warp/asset-engine/depreciation"
	"github.com/warp/asset-engine/logging"
	"github.com/warp/asset-engine/metrics"
	"github.com/warp/asset-engine/store/sqlite"
)

// bookCache is a BookCache that must be closed on shutdown.
type bookCache interface {
	depreciation.BookCache
	Close() error
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Log.Logging())
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	books, err := newBookCache(cfg, logger)
	if err != nil {
		return err
	}
	defer books.Close()

	m := metrics.New()

	builder := depreciation.NewBuilder(cfg.Depreciation.CurrencyPrecision)
	lifecycle := depreciation.NewLifecycle(builder, books, logger)

	engine := depreciation.NewEngine(store, logger)
	engine.BookCache = books
	engine.Metrics = m
	engine.Settings = depreciation.Settings{
		AutomaticPostingEnabled: cfg.Depreciation.AutomaticPostingEnabled,
		MaxConcurrency:          cfg.Scheduler.MaxConcurrency,
	}
	if len(cfg.Depreciation.PostingRoles) > 0 {
		engine.Authorizer = depreciation.RoleAuthorizer{Roles: cfg.Depreciation.PostingRoles}
	}

	svc := assets.NewService(store, lifecycle, engine, logger)
	handler := api.NewHandler(store, svc, engine, logger)

	if err := m.UpdateAssetMetrics(context.Background(), store); err != nil {
		logger.Warn("failed to initialize asset metrics", zap.Error(err))
	}

	scheduler := api.NewDepreciationScheduler(engine, logger)
	scheduler.Gauge = m
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.CheckInterval
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.HTTP.CORSAllowOrigins,
		Metrics:        promhttp.Handler(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("app", cfg.App.Name),
			zap.String("env", cfg.App.Env),
			zap.String("addr", server.Addr),
			zap.String("database", cfg.Database.Path),
			zap.String("cache", cfg.Cache.Driver),
			zap.Bool("automatic_posting", cfg.Depreciation.AutomaticPostingEnabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func newBookCache(cfg *config.Config, logger *zap.Logger) (bookCache, error) {
	if cfg.Cache.Driver == "redis" {
		return cache.NewRedis(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Cache.TTL,
		}, logger)
	}
	return cache.NewMemory(cache.WithTTL(cfg.Cache.TTL), cache.WithLogger(logger)), nil
}
