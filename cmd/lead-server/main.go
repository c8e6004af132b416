// cmd/lead-server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rent360-leads/internal/api"
	"rent360-leads/internal/app"
	"rent360-leads/internal/common/auth"
	"rent360-leads/internal/common/camunda"
	"rent360-leads/internal/common/config"
	"rent360-leads/internal/common/logger"
	"rent360-leads/internal/common/observability"
	"rent360-leads/pkg/registry"

	erec "rent360-leads/internal/workers/leads/expire-recommendations"
	grec "rent360-leads/internal/workers/leads/generate-recommendations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOptions(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting lead server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, obs, app.DefaultOptions)
	if err != nil {
		zapLog.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	resolver, err := app.NewResolver(cfg.Auth)
	if err != nil {
		zapLog.Fatal("auth setup failed", zap.Error(err))
	}
	policy, err := auth.NewAccessPolicy()
	if err != nil {
		zapLog.Fatal("access policy failed", zap.Error(err))
	}

	checks := a.Checks()

	// --- Zeebe workers (optional) ---
	var pool *camunda.WorkerPool
	if cfg.Camunda.Enabled {
		zc, err := camunda.NewClient(ctx, cfg.Camunda)
		if err != nil {
			zapLog.Fatal("zeebe client failed", zap.Error(err))
		}
		defer zc.Close()
		zapLog.Info("Zeebe client connected successfully", zap.String("gateway", cfg.Camunda.BrokerAddress))
		checks["zeebe"] = zc.HealthCheck

		reg, err := registry.LoadRegistry(cfg.RegistryPath)
		if err != nil {
			zapLog.Warn("activity registry unavailable, job input is not schema checked", zap.Error(err))
		}

		pool = camunda.NewWorkerPool(zc.GetClient(), cfg.App.Name, log)

		gcfg := cfg.Workers[grec.TaskType]
		gen := grec.NewHandler(grec.LoadConfig(gcfg), a.Service, reg, log)
		pool.Start(grec.TaskType, gcfg, gen.Handle)

		ecfg := cfg.Workers[erec.TaskType]
		exp := erec.NewHandler(erec.LoadConfig(ecfg, cfg.Recommendations), a.Service, reg, log)
		pool.Start(erec.TaskType, ecfg, exp.Handle)

		zapLog.Info("workers registered", zap.Strings("taskTypes", pool.Running()))
	}

	// --- HTTP API ---
	router := api.NewRouter(api.RouterConfig{
		Service:           a.Service,
		Resolver:          resolver,
		Policy:            policy,
		Logger:            log,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		GenerateRateLimit: cfg.Server.GenerateRateLimit,
		Checks:            checks,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Millisecond,
	}
	go func() {
		zapLog.Info("API server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("API server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Metrics & pprof ---
	if cfg.Server.MetricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			zapLog.Info("Metrics server listening", zap.String("addr", cfg.Server.MetricsAddr))
			if err := http.ListenAndServe(cfg.Server.MetricsAddr, nil); err != nil {
				zapLog.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Millisecond)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down API server", zap.Error(err))
	}
	if pool != nil {
		pool.Stop()
	}

	zapLog.Info("Lead server stopped gracefully")
}
