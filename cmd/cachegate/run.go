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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	"github.com/eugener/cachegate/internal/app"
	"github.com/eugener/cachegate/internal/cache"
	"github.com/eugener/cachegate/internal/config"
	"github.com/eugener/cachegate/internal/server"
	"github.com/eugener/cachegate/internal/telemetry"
	"github.com/eugener/cachegate/internal/upstream"
	"github.com/eugener/cachegate/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := setupLogging(cfg.Log); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Tracing
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingOptions{
		Enabled:    cfg.Telemetry.Tracing.Enabled,
		Endpoint:   cfg.Telemetry.Tracing.Endpoint,
		Insecure:   cfg.Telemetry.Tracing.Insecure,
		SampleRate: cfg.Telemetry.Tracing.SampleRate,
		Version:    resolvedVersion(),
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	// Origin client
	var (
		resolver *dnscache.Resolver
		workers  []worker.Worker
	)
	if cfg.Origin.DNSCache {
		resolver = &dnscache.Resolver{}
		workers = append(workers, worker.NewDNSRefresher(resolver, worker.DefaultDNSRefreshInterval))
	}
	fwd := upstream.New(cfg.Origin.Host, cfg.Origin.Port, upstream.NewClient(resolver, cfg.Origin.Timeout))

	// Cache store, created once for the process lifetime
	store, err := cache.NewMemory()
	if err != nil {
		return err
	}

	// Metrics
	var (
		metrics        *telemetry.Metrics
		metricsHandler http.Handler
	)
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = telemetry.NewMetrics(reg, store.Len)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Wire services
	proxySvc := app.NewProxyService(store, fwd, app.Policy{
		Mode:         cfg.Cache.Mode,
		TTL:          cfg.Cache.TTL,
		BypassIfAuth: cfg.Cache.BypassIfAuth,
		Coalesce:     cfg.Cache.Coalesce,
	}, app.WithMetrics(metrics))

	handler := server.New(server.Deps{
		Proxy:          proxySvc,
		Cache:          store,
		ReadyCheck:     fwd.Ping,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background workers
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	workerDone := make(chan error, 1)
	runner := worker.NewRunner(workers...)
	go func() { workerDone <- runner.Run(workerCtx) }()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("cachegate ready",
		"version", resolvedVersion(),
		"addr", cfg.Server.Addr(),
		"backend", fwd.Backend(),
		"ALLOW_AUTHORIZED", cfg.Cache.Mode.AllowAuthorized(),
		"credential_mode", cfg.Cache.Mode.String(),
		"BYPASS_CACHE_IF_AUTH", cfg.Cache.BypassIfAuth,
		"CACHE_TTL_MS", cfg.Cache.TTL.Milliseconds(),
		"coalesce", cfg.Cache.Coalesce,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	workerCancel()
	if err := <-workerDone; err != nil {
		slog.Warn("worker exited", "error", err)
	}

	slog.Info("cachegate stopped")
	return nil
}

// setupLogging installs the default slog logger.
func setupLogging(cfg config.LogConfig) error {
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}
