// Package cli provides the startup steps shared by cmd/donations and
// cmd/donations-admin.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"donations/internal/app"
	"donations/internal/backend"
	"donations/internal/config"
	"donations/internal/log"
)

// SetupLogger builds the process logger at the configured level and makes
// it the slog default. An unknown level falls back to info.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	if lvl, err := log.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads .env and the environment and validates the
// result.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Runtime is an opened application with its storage and bus.
type Runtime struct {
	App     *app.App
	Backend *backend.BackendResult
}

// Close releases the bus and the storage.
func (r *Runtime) Close() error {
	if r == nil || r.Backend == nil || r.Backend.Cleanup == nil {
		return nil
	}
	return r.Backend.Cleanup()
}

// OpenApp creates the configured backend and loads the application state
// from it.
func OpenApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Runtime, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	a, err := app.New(ctx, res.KV, res.Bus, app.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		Logger:            logger,
	})
	if err != nil {
		_ = res.Cleanup()
		return nil, fmt.Errorf("load state: %w", err)
	}
	return &Runtime{App: a, Backend: res}, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
