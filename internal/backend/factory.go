package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"board/internal/amqp"
	"board/internal/jobs"
	applog "board/internal/log"
	"board/internal/storage"
	"board/internal/storage/memory"
	"board/internal/storage/mongo"
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
	return &DefaultFactory{logger: logger.With(applog.FieldComponent, applog.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store   jobs.Store
		closers []CleanupFunc
		err     error
	)
	switch config.Type {
	case SQLiteBackend:
		store, closers, err = f.createSQLiteStore(config)
	case MongoBackend:
		store, closers, err = f.createMongoStore(ctx, config)
	case MemoryBackend:
		store, err = f.createMemoryStore(config)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Store: store}
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		switch {
		case err != nil && config.RequireAMQP:
			_ = runAll(closers)
			return nil, fmt.Errorf("initialize AMQP client: %w", err)
		case err != nil:
			f.logger.Warn("Failed to initialize AMQP client, continuing without board mirror events",
				applog.FieldError, err)
		default:
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.AMQP = client
			result.Publisher = client
			closers = append([]CleanupFunc{client.Close}, closers...)
		}
	}

	result.Cleanup = func() error { return runAll(closers) }
	return result, nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (jobs.Store, []CleanupFunc, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, []CleanupFunc{repo.Close}, nil
}

func (f *DefaultFactory) createMongoStore(ctx context.Context, config Config) (jobs.Store, []CleanupFunc, error) {
	store, err := mongo.NewStore(ctx, config.MongoURI, config.MongoDatabase)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize MongoDB store: %w", err)
	}
	f.logger.Info("Initialized MongoDB backend",
		"database", config.MongoDatabase,
		"collection", mongo.CollectionName)

	closeStore := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return store.Close(ctx)
	}
	return store, []CleanupFunc{closeStore}, nil
}

func (f *DefaultFactory) createMemoryStore(config Config) (jobs.Store, error) {
	if config.MemorySeedFile == "" {
		f.logger.Info("Initialized memory backend")
		return memory.New(), nil
	}
	store, err := memory.NewFromFile(config.MemorySeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", config.MemorySeedFile)
	return store, nil
}

func runAll(closers []CleanupFunc) error {
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
