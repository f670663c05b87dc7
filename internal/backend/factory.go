package backend

import (
	"context"
	"fmt"
	"log/slog"

	"scontrini/internal/store/jsonfile"
	"scontrini/internal/store/memory"
	"scontrini/internal/store/postgres"
	"scontrini/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(config)
	case JSONBackend:
		return f.createJSONBackend(config)
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	var s *memory.Store
	if config.DataDirectory != "" {
		s = memory.NewFromFiles(config.DataDirectory)
	} else {
		s = memory.New(config.Seed)
	}

	f.logger.Info("Initialized memory backend", "data_directory", config.DataDirectory)

	return &BackendResult{Store: s, Cleanup: s.Close}, nil
}

func (f *DefaultFactory) createJSONBackend(config Config) (*BackendResult, error) {
	s, err := jsonfile.New(config.DataDirectory, config.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JSON file store: %w", err)
	}

	f.logger.Info("Initialized JSON file backend", "data_directory", config.DataDirectory)

	return &BackendResult{Store: s, Cleanup: s.Close}, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := sqlite.NewRepository(ctx, config.SQLiteDBPath, config.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := postgres.NewRepository(ctx, config.PostgresDSN, config.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}

	f.logger.Info("Initialized Postgres backend")

	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}
