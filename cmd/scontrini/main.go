package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"scontrini/internal/amqp"
	"scontrini/internal/cache"
	"scontrini/internal/cli"
	apphttp "scontrini/internal/http"
	applog "scontrini/internal/log"
	"scontrini/internal/llm"
	"scontrini/internal/receipt"
	"scontrini/internal/services"
)

const cacheSweepInterval = 5 * time.Minute

func main() {
	cli.LoadEnvFile()

	bootstrap := cli.SetupLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	backend, err := cli.OpenStore(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := backend.Cleanup(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	model, err := llm.NewClient(ctx, cli.LLMConfig(cfg))
	if err != nil {
		logger.Error("Failed to initialize model client", "error", err, "provider", cfg.LLMProvider)
		os.Exit(1)
	}
	defer model.Close()

	// Events are optional: without a broker nothing is exported.
	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, expense events disabled", "error", err)
		} else {
			defer client.Close()
			events = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - expenses will not be exported")
	}

	expenses := services.NewExpenseService(backend.Store, events)
	categories := services.NewCategoryService(backend.Store)
	suggester := receipt.NewSuggester(model, cfg.SuggestCacheTTL)
	receipts := services.NewReceiptService(
		receipt.NewPipeline(receipt.NewLLMExtractor(model)),
		suggester,
		categories,
		expenses,
		cfg.ReviewTTL,
	)

	caches := cache.NewManager()
	caches.Register("reviews", receipts.Reviews())
	if c := suggester.Cache(); c != nil {
		caches.Register("suggestions", c)
	}
	caches.StartCleanup(cacheSweepInterval)
	defer caches.Stop()

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Expenses:     expenses,
		Categories:   categories,
		Receipts:     receipts,
		Caches:       caches,
		Logger:       applog.New(applog.Config{Handler: logger.Handler(), Component: applog.ComponentApp}),
		RateLimitRPM: cfg.RateLimitRPM,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", "error", err)
		os.Exit(1)
	}
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 2 * time.Minute
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting scontrini server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"llm_provider", cfg.LLMProvider)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
