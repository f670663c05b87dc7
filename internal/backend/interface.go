package backend

import (
	"context"

	"scontrini/internal/core"
	"scontrini/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store instance and its cleanup function
type BackendResult struct {
	Store   store.Store
	Cleanup CleanupFunc
}

// Factory creates stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for store creation
type Config struct {
	Type BackendType

	// Seed is written into a store that has no categories yet.
	Seed []core.Category

	// Memory and JSON file backends
	DataDirectory string

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresDSN string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	JSONBackend     BackendType = "json"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, JSONBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
