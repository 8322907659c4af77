// Package backend opens the state store and change bus selected by
// configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"donations/internal/broadcast"
	"donations/internal/config"
	"donations/internal/storage"
)

// Kind names a state store implementation.
type Kind string

const (
	SQLite Kind = "sqlite"
	Memory Kind = "memory"
)

func (k Kind) valid() bool {
	return k == SQLite || k == Memory
}

// Config selects the store and, optionally, a broker for cross-process
// change notifications. An empty AMQPURL keeps notifications in-process.
type Config struct {
	Kind         Kind
	SQLitePath   string
	AMQPURL      string
	AMQPExchange string
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if !c.Kind.valid() {
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Kind))
	}
	if c.Kind == SQLite && c.SQLitePath == "" {
		errs = append(errs, errors.New("sqlite backend needs a database path"))
	}
	if c.AMQPURL != "" && c.AMQPExchange == "" {
		errs = append(errs, errors.New("amqp exchange is required when an amqp url is set"))
	}
	return errors.Join(errs...)
}

// FromAppConfig picks the backend settings out of the process config.
func FromAppConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, errors.New("nil config")
	}
	c := Config{
		Kind:         Kind(cfg.DataBackend),
		SQLitePath:   cfg.SQLiteDBPath,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AMQPExchange,
	}
	if !c.Kind.valid() {
		return Config{}, fmt.Errorf("unknown DATA_BACKEND %q", cfg.DataBackend)
	}
	return c, nil
}

// BackendResult is the shared state store and the change channel of one
// process. Cleanup closes both.
type BackendResult struct {
	KV      storage.KV
	Bus     broadcast.Bus
	Cleanup func() error
}

// Factory opens backends.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
