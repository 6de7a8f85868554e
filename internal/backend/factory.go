package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tally/internal/amqp"
	"tally/internal/log"
	"tally/internal/records/memory"
	"tally/internal/services"
	"tally/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Origin == "" {
		config.Origin = uuid.NewString()
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := storage.NewSQLiteStore(config.SQLiteDBPath, storage.WithLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	// Initialize AMQP client (optional)
	var bus *amqp.Client
	if config.AMQPURL != "" {
		bus, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events",
				log.FieldError, err)
			bus = nil
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				log.FieldOrigin, config.Origin)
		}
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", bus != nil)

	return f.result(store, bus, config.Origin), nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store := memory.New()
	if config.AMQPURL != "" {
		f.logger.WarnContext(ctx, "Memory backend is process local, ignoring AMQP_URL")
	}
	f.logger.InfoContext(ctx, "Initialized memory backend")
	return f.result(store, nil, config.Origin), nil
}

func (f *DefaultFactory) result(b Backend, bus *amqp.Client, origin string) *BackendResult {
	var publisher services.Publisher
	if bus != nil {
		publisher = bus
	}
	closer, _ := b.(interface{ Close() error })

	return &BackendResult{
		Backend: b,
		Store:   services.NewRecordService(b, publisher, origin, f.logger),
		Bus:     bus,
		Origin:  origin,
		Cleanup: func() error {
			var errs []error
			if bus != nil {
				errs = append(errs, bus.Close())
			}
			if closer != nil {
				errs = append(errs, closer.Close())
			}
			return errors.Join(errs...)
		},
	}
}
