package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"donations/internal/amqp"
	"donations/internal/broadcast"
	"donations/internal/log"
	"donations/internal/storage"
)

// DefaultFactory opens SQLite or memory stores and dials AMQP.
type DefaultFactory struct {
	logger *slog.Logger
	dialer func(url, exchange string) (broadcast.Bus, error)
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
		dialer: func(url, exchange string) (broadcast.Bus, error) {
			return amqp.NewBus(url, exchange)
		},
	}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var kv storage.KV
	switch config.Kind {
	case SQLite:
		db, err := storage.NewSQLite(config.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLitePath)
		kv = db
	case Memory:
		f.logger.InfoContext(ctx, "Initialized memory backend, data is not kept across restarts")
		kv = storage.NewMemory()
	default:
		return nil, fmt.Errorf("unsupported backend %q", config.Kind)
	}

	bus := f.createBus(ctx, config)

	return &BackendResult{
		KV:  kv,
		Bus: bus,
		Cleanup: func() error {
			return errors.Join(bus.Close(), kv.Close())
		},
	}, nil
}

// createBus falls back to an in-process bus when the broker is not
// configured or unreachable.
func (f *DefaultFactory) createBus(ctx context.Context, config Config) broadcast.Bus {
	if config.AMQPURL == "" {
		return broadcast.NewLocal()
	}
	bus, err := f.dialer(config.AMQPURL, config.AMQPExchange)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP bus, continuing without cross-process sync", log.FieldError, err)
		return broadcast.NewLocal()
	}
	f.logger.InfoContext(ctx, "Initialized AMQP bus", "exchange", config.AMQPExchange)
	return bus
}
