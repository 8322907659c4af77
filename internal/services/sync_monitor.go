package services

import (
	"context"
	"fmt"
	"log/slog"

	"donations/internal/broadcast"
	"donations/internal/log"
)

// SyncMonitor applies changes announced by other processes.
type SyncMonitor struct {
	bus       broadcast.Bus
	origin    string
	tracker   *ChangeTracker
	reloaders []Reloader
	refresher Refresher
}

func NewSyncMonitor(bus broadcast.Bus, origin string, tracker *ChangeTracker, refresher Refresher, reloaders ...Reloader) *SyncMonitor {
	return &SyncMonitor{
		bus:       bus,
		origin:    origin,
		tracker:   tracker,
		reloaders: reloaders,
		refresher: refresher,
	}
}

// Run consumes the bus until ctx is done.
func (m *SyncMonitor) Run(ctx context.Context) error {
	msgs, err := m.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to changes: %w", err)
	}
	slog.InfoContext(ctx, "Sync monitor started", log.FieldOrigin, m.origin)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				slog.InfoContext(ctx, "Sync monitor stopped, bus closed")
				return nil
			}
			m.Handle(ctx, msg)
		}
	}
}

// Handle applies msg and reports whether it caused a reload. Own messages
// and markers not newer than the last one seen are ignored.
func (m *SyncMonitor) Handle(ctx context.Context, msg broadcast.Message) bool {
	if msg.Origin == m.origin {
		return false
	}
	if !m.tracker.Observe(msg.Marker) {
		slog.DebugContext(ctx, "Ignoring stale change message",
			log.FieldScope, msg.Scope, log.FieldMarker, msg.Marker, "last", m.tracker.Last())
		return false
	}

	slog.InfoContext(ctx, "Applying external change", log.NewFields().
		WithChange(string(msg.Scope), msg.Marker, msg.Origin).
		WithOperation(log.OpReload).ToSlice()...)
	reloadAll(ctx, m.reloaders)
	if m.refresher != nil {
		m.refresher.Refresh(ctx, "sync")
	}
	return true
}

func reloadAll(ctx context.Context, reloaders []Reloader) {
	for _, r := range reloaders {
		if err := r.Reload(ctx); err != nil {
			slog.ErrorContext(ctx, "Failed to reload shared state", log.FieldError, err)
		}
	}
}
