package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spacesedan/sentiment-aura/config"
	"github.com/spacesedan/sentiment-aura/internal/analysis"
	"github.com/spacesedan/sentiment-aura/internal/api"
	"github.com/spacesedan/sentiment-aura/internal/dispatch"
	"github.com/spacesedan/sentiment-aura/internal/logging"
	"github.com/spacesedan/sentiment-aura/internal/monitoring"
)

const shutdownTimeout = 10 * time.Second

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("[Main] Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logging.InitLogger(level, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := buildRegistry(cfg)
	if err != nil {
		slog.Error("[Main] Failed to build provider registry", slog.String("error", err.Error()))
		os.Exit(1)
	}

	coordinator := dispatch.NewCoordinator(registry, dispatch.Options{
		ProviderTimeout: cfg.ProviderTimeout(),
		OverallDeadline: cfg.OverallDeadline(),
		RetryCount:      cfg.RetryCount,
		RetryBase:       cfg.RetryBase(),
		Breaker: dispatch.BreakerSettings{
			Threshold: uint32(cfg.CircuitBreakerThreshold),
			Window:    cfg.BreakerWindow(),
			Cooldown:  cfg.BreakerCooldown(),
		},
		Fallback: providerIDs(cfg.FallbackProviders),
	})

	resultCache, closeCache := buildCache(ctx, cfg)
	defer closeCache()

	rec, closeSinks := buildRecorder(ctx, cfg)
	defer closeSinks()
	// The recorder outlives the signal context so requests drained during
	// shutdown are still flushed by Close.
	go rec.Run(context.WithoutCancel(ctx))
	defer rec.Close()

	defaults := providerIDs(cfg.DefaultProviders)
	service := analysis.NewService(registry, coordinator, resultCache, rec, analysis.Options{
		MaxTextLength:    cfg.MaxTextLength,
		MaxKeywords:      cfg.MaxKeywords,
		CacheTTL:         cfg.CacheTTL(),
		DefaultProviders: defaults,
	})

	health := monitoring.NewHealthStatus()
	go monitoring.MonitorProviderHealth(ctx, registry.All(), cfg.HealthcheckInterval(), health)

	handler := api.NewHandler(service, registry.IDs(), defaults, coordinator, health)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("[Main] HTTP server listening",
			slog.String("addr", cfg.HTTPAddr),
			slog.Any("providers", registry.IDs()),
			slog.Any("defaults", defaults))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[Main] HTTP server stopped", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("[Main] Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("[Main] Graceful shutdown failed", slog.String("error", err.Error()))
	}
}
