// Package cli provides common initialization utilities shared by
// cmd/scontrini, cmd/scontrini-worker and cmd/scontrini-cli.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"scontrini/internal/backend"
	"scontrini/internal/config"
	applog "scontrini/internal/log"
	"scontrini/internal/llm"
)

// SetupLogger initializes structured logging from LOG_LEVEL and LOG_FORMAT
// and sets it as the default logger. Unknown levels fall back to info.
func SetupLogger(w io.Writer, level, format string) *slog.Logger {
	lvl, err := applog.ParseLevel(level)
	logger := slog.New(applog.NewHandler(w, lvl, format))
	slog.SetDefault(logger)
	if err != nil {
		logger.Warn("Invalid log level, using info", "error", err)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// OpenStore creates the configured store backend.
func OpenStore(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", bcfg.Type, err)
	}
	return res, nil
}

// LLMConfig selects the API key matching the configured provider.
func LLMConfig(cfg *config.Config) llm.Config {
	key := cfg.GeminiAPIKey
	if cfg.LLMProvider == "openai" {
		key = cfg.OpenAIAPIKey
	}
	return llm.Config{
		Provider:          cfg.LLMProvider,
		APIKey:            key,
		Model:             cfg.LLMModel,
		BaseURL:           cfg.LLMBaseURL,
		Timeout:           cfg.LLMTimeout,
		MaxAttempts:       cfg.LLMMaxAttempts,
		RequestsPerMinute: cfg.LLMRateLimit,
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
