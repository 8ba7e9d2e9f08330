package backend

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/log"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the configured store and, when AMQP_URL is set, an event client.
// A failing AMQP connection is logged and the backend continues without events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store storage.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = f.createSQLiteStore(config)
	case MemoryBackend:
		store, err = f.createMemoryStore(config)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	events := f.connectEvents(ctx, config)

	return &BackendResult{
		Store:  store,
		Events: events,
		Cleanup: func() error {
			var errs []error
			if events != nil {
				errs = append(errs, events.Close())
			}
			errs = append(errs, store.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (storage.Store, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createMemoryStore(config Config) (storage.Store, error) {
	store, err := memory.NewFromSeedFile(config.SeedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_path", config.SeedPath)
	return store, nil
}

func (f *DefaultFactory) connectEvents(ctx context.Context, config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
		return nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
