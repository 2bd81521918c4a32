package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ktshq/sitewatch/internal/check"
	"github.com/ktshq/sitewatch/internal/config"
	"github.com/ktshq/sitewatch/internal/httpapi"
	apimw "github.com/ktshq/sitewatch/internal/httpapi/middleware"
	"github.com/ktshq/sitewatch/internal/logging"
	"github.com/ktshq/sitewatch/internal/probe"
	"github.com/ktshq/sitewatch/internal/repo"
	"github.com/ktshq/sitewatch/internal/repo/memory"
	"github.com/ktshq/sitewatch/internal/repo/postgres"
	"github.com/ktshq/sitewatch/internal/repo/sqlite"
	"github.com/ktshq/sitewatch/internal/scheduler"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitors, logs, settings, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_failed", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	defer closeStore()

	prober := probe.NewHTTPProber()
	gate := check.NewGate(monitors, settings)
	deep := check.NewDeepRunner(logger, monitors, logs, prober, gate, cfg.MaxConcurrent)
	light := check.NewLightRunner(logger, monitors, logs, settings, prober, cfg.LightTimeout, cfg.MaxConcurrent)
	light.RetryGetOn405 = cfg.RetryGetOn405
	sweeper := check.NewRetentionSweeper(logger, logs, settings)
	scorer := check.NewStabilityScorer(logs)

	sched := scheduler.New(logger, deep, light, sweeper, cfg.DeepTick, cfg.LightTick, cfg.RetentionTick)
	go sched.Run(ctx)

	api := httpapi.NewServer(logger, monitors, logs, settings, deep, light, scorer)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.Router(keys, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("api_listen",
		zap.String("addr", cfg.Addr),
		zap.String("driver", cfg.DatabaseDriver),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("api_serve_failed", zap.Error(err))
	}
	logger.Info("api_stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.MonitorStore, repo.LogStore, repo.SettingsStore, func(), error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		st, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return st, st, st, st.Close, nil
	case "sqlite":
		st, err := sqlite.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return st, st, st, func() { _ = st.Close() }, nil
	default:
		st := memory.New()
		return st, st, st, func() {}, nil
	}
}
