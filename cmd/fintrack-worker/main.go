package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentWorker)

	logger.Info("Starting fintrack-worker",
		"backup_dir", cfg.BackupDir,
		"keep", cfg.BackupKeep)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	backendCfg.RequireEvents = true
	if backendCfg.Type == backend.MemoryBackend {
		logger.Warn("Memory backend is not shared with the API process, backups will be empty")
	}

	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", applog.FieldError, err)
		os.Exit(1)
	}

	// The worker reads the ledger the API process writes; it never mutates it.
	tracker := services.NewTrackerFromKV(res.KV, cfg.Locale, services.TrackerOptions{})
	backups := worker.NewBackupWorker(tracker, cfg.BackupDir, cfg.BackupKeep)

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, func(context.Context) {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	})

	if path, err := backups.Backup(ctx); err != nil {
		logger.Warn("Startup backup failed", applog.FieldError, err)
	} else {
		logger.Info("Startup backup written", "path", path)
	}

	go func() {
		logger.Info("Consuming ledger events", "queue", cfg.AMQPQueue)
		err := res.Events.ConsumeLedgerEvents(ctx, backups.HandleLedgerEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Ledger event consumer stopped", applog.FieldError, err)
			_ = res.Cleanup()
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
