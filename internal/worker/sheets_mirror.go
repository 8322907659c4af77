// Package worker runs optional background jobs next to the HTTP server.
package worker

import (
	"context"
	"time"

	"donations/internal/core"
	"donations/internal/log"
)

// GridWriter overwrites a remote sheet with a grid of cells.
type GridWriter interface {
	WriteRows(ctx context.Context, grid [][]any) error
}

// SheetsMirror keeps a Google sheet in step with the donation list. It is
// told about changes as a dashboard sink and writes at most once per
// interval; a failed write is retried on the next tick.
type SheetsMirror struct {
	writer   GridWriter
	source   func() [][]any
	interval time.Duration
	dirty    chan struct{}
	logger   *log.Logger
}

func NewSheetsMirror(writer GridWriter, source func() [][]any, interval time.Duration, logger *log.Logger) *SheetsMirror {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SheetsMirror{
		writer:   writer,
		source:   source,
		interval: interval,
		dirty:    make(chan struct{}, 1),
		logger:   logger.WithComponent(log.ComponentSheets),
	}
}

// ViewUpdated marks the sheet as stale.
func (m *SheetsMirror) ViewUpdated(_ context.Context, _ core.View) {
	select {
	case m.dirty <- struct{}{}:
	default:
	}
}

// Run writes pending changes every interval until ctx is done. The sheet is
// written once at startup.
func (m *SheetsMirror) Run(ctx context.Context) error {
	if m.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	pending := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.dirty:
			pending = true
		case <-ticker.C:
			if !pending {
				continue
			}
			if err := m.Sync(ctx); err != nil {
				m.logger.WarnContext(ctx, "Sheet mirror failed, retrying on next tick",
					log.FieldOperation, log.OpSync, log.FieldError, err)
				continue
			}
			pending = false
		}
	}
}

// Sync writes the current grid immediately.
func (m *SheetsMirror) Sync(ctx context.Context) error {
	grid := m.source()
	if err := m.writer.WriteRows(ctx, grid); err != nil {
		return err
	}
	m.logger.DebugContext(ctx, "Sheet mirrored", log.FieldCount, len(grid)-1)
	return nil
}
