package backend

import (
	"context"

	"fintrack/internal/amqp"
	"fintrack/internal/storage"
)

// CleanupFunc releases resources held by a backend
type CleanupFunc func() error

// BackendResult contains the opened store, the optional event client and a cleanup function
type BackendResult struct {
	Store storage.Store
	// Events is nil when AMQP is not configured or unreachable.
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific
	SeedPath string

	// AMQP is optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
