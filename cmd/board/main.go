package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"board/internal/backend"
	"board/internal/cli"
	apphttp "board/internal/http"
	applog "board/internal/log"
	"board/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := backend.NewFactory(logger.Logger).CreateBackend(startCtx, backendCfg)
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	jobService := services.NewJobService(result.Store, result.Publisher, services.WithStaleAfter(cfg.StaleAfterDays))
	importService := services.NewImportService(jobService)

	srv := apphttp.NewServer(":"+cfg.Port, jobService, importService, apphttp.Options{
		StaticDir:      cfg.StaticDir,
		UploadMaxBytes: cfg.UploadMaxBytes,
		RateLimit:      cfg.RateLimit,
		Logger:         logger.WithComponent(applog.ComponentHTTP),
	})
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting board server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", result.Publisher != nil,
		"static_dir", cfg.StaticDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
