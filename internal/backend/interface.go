package backend

import (
	"context"

	"tally/internal/amqp"
	"tally/internal/records"
)

// Backend is a record store that can also re-deliver snapshots when another
// process changed the data.
type Backend interface {
	records.Store
	records.Refresher
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	// Backend is the raw store.
	Backend Backend
	// Store wraps Backend and announces changes on Bus when one is set.
	Store records.Store
	// Bus is nil unless AMQP is configured and reachable.
	Bus *amqp.Client
	// Origin identifies this process on the bus.
	Origin  string
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string

	// Origin tags change events; a random one is used when empty.
	Origin string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
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
