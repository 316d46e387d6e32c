package backend

import (
	"context"

	"board/internal/amqp"
	"board/internal/jobs"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// BackendResult holds the job store and, when AMQP is configured, the event
// client. Publisher is nil when events are disabled.
type BackendResult struct {
	Store     jobs.Store
	Publisher jobs.EventPublisher
	AMQP      *amqp.Client
	Cleanup   CleanupFunc
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

	// MongoDB specific
	MongoURI      string
	MongoDatabase string

	// Memory backend specific
	MemorySeedFile string

	// Optional job events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// RequireAMQP turns a failed AMQP connection into an error instead of
	// a warning.
	RequireAMQP bool
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	MongoBackend  BackendType = "mongo"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, MongoBackend:
		return true
	default:
		return false
	}
}
