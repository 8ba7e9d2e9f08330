package main

import (
	"context"
	"errors"
	"os"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/sheets/google"
	"fintrack/internal/storage"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting fintrack-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateJournal(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := cli.ShutdownContext(context.Background(), logger)
	defer stop()

	journal, err := google.NewFromEnv(ctx)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	// The memory backend lives in the server process; only sqlite is shared.
	var store storage.Store
	if cfg.DataBackend == "sqlite" {
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Warn("SQLite unavailable, journaling event snapshots only", "error", err)
		} else {
			defer repo.Close()
			store = repo
		}
	}

	w := worker.NewJournalWorker(journal, store)

	logger.WithComponent(log.ComponentWorker).Info("Consuming transaction events",
		"queue", cfg.AMQPQueue,
		"store_enabled", store != nil)

	if err := client.ConsumeTransactionEvents(ctx, w.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
