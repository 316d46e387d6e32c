package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"board/internal/backend"
	"board/internal/cli"
	"board/internal/config"
	applog "board/internal/log"
	"board/internal/sheets/google"
	"board/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	logger.Info("Starting board-worker")

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	backendCfg.RequireAMQP = true

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	result, err := backend.NewFactory(logger.Logger).CreateBackend(startCtx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	mirror, err := google.New(startCtx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		_ = result.Cleanup()
		os.Exit(1)
	}
	logger.Info("Google Sheets mirror initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)

	mirrorWorker := worker.NewMirrorWorker(result.Store, mirror)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return result.AMQP.ConsumeWithReconnect(gctx, mirrorWorker)
	})
	g.Go(func() error {
		return mirrorWorker.RunReconciler(gctx, cfg.ReconcileInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		// the shutdown goroutine only wakes on a signal
		logger.Error("Worker stopped", applog.FieldError, err)
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
