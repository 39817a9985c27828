// Command syncd runs the incident submission service: it accepts reports over
// HTTP, drains the local queue into the remote store, and serves analytics.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/incident-risk-service/internal/adapter/http"
	mysqladapter "github.com/couchcryptid/incident-risk-service/internal/adapter/mysql"
	"github.com/couchcryptid/incident-risk-service/internal/analytics"
	"github.com/couchcryptid/incident-risk-service/internal/app"
	"github.com/couchcryptid/incident-risk-service/internal/config"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
	"github.com/couchcryptid/incident-risk-service/internal/pipeline"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Error("service error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	local, err := app.OpenLocal(cfg, clock, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := local.Close(); err != nil {
			logger.Error("queue store close error", "error", err)
		}
	}()

	store, err := mysqladapter.Open(cfg.MySQLDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(ctx); err != nil {
		// The queue absorbs submissions until the database is back.
		logger.Warn("remote schema migration failed, continuing offline", "error", err)
	}

	committer, err := app.NewCommitter(cfg, store, logger)
	if err != nil {
		return err
	}
	if committer != store {
		defer func() {
			if err := committer.Close(); err != nil {
				logger.Error("committer close error", "error", err)
			}
		}()
	}

	geocoder, closeGeocoder, err := app.NewGeocoder(cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer closeGeocoder()

	coordinator := pipeline.NewCoordinator(local.Queue, local.Ledger, committer, clock, logger, metrics)
	runner := pipeline.NewRunner(coordinator, cfg.DrainInterval, clock, logger)
	submitter := pipeline.NewSubmitter(committer, local.Queue, committer, clock, logger, metrics)
	analyzer := analytics.NewService(store, geocoder, clock, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Services{
		Submitter:     submitter,
		Queue:         local.Queue,
		Sync:          runner,
		Analytics:     analyzer,
		DefaultPeriod: cfg.DefaultRiskPeriod,
		Metrics:       metrics,
	}, httpadapter.AllReady(runner, committer), logger)

	logger.Info("service starting",
		"commit_backend", cfg.CommitBackend,
		"queue_in_memory", cfg.QueueInMemory,
		"drain_interval", cfg.DrainInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return runner.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
