package main

import (
	"context"
	"errors"
	"os"
	"time"

	"scontrini/internal/amqp"
	"scontrini/internal/cli"
	gsheet "scontrini/internal/sheets/google"
	"scontrini/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	bootstrap := cli.SetupLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Export configuration invalid", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting scontrini-worker")

	backend, err := cli.OpenStore(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := backend.Cleanup(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	sheetsClient, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exporter := worker.NewExportWorker(backend.Store, sheetsClient)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Consuming expense events", "queue", cfg.AMQPQueue)
	if err := amqpClient.Consume(ctx, exporter.Handlers()); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
