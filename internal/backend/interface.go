package backend

import (
	"context"

	"fintrack/internal/amqp"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult holds the opened store, the optional event client and a
// cleanup function that closes both.
type BackendResult struct {
	KV      storage.KV
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// EventPublisher returns the AMQP client as a publisher, or nil when no
// broker is configured.
func (r *BackendResult) EventPublisher() services.EventPublisher {
	if r == nil || r.Events == nil {
		return nil
	}
	return r.Events
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	// AMQP is optional for every backend type.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// RequireEvents makes a broker connection failure fatal. The backup
	// worker sets it since it has nothing to do without events.
	RequireEvents bool
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
