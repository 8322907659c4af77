package services

import (
	"context"
	"log/slog"
	"time"

	"donations/internal/log"
	"donations/internal/storage"
)

// Heartbeat periodically refreshes the view so date-dependent figures stay
// current, and reloads the stores when the persisted change marker moved
// without a bus message.
type Heartbeat struct {
	kv        storage.KV
	interval  time.Duration
	tracker   *ChangeTracker
	refresher Refresher
	reloaders []Reloader
}

func NewHeartbeat(kv storage.KV, interval time.Duration, tracker *ChangeTracker, refresher Refresher, reloaders ...Reloader) *Heartbeat {
	return &Heartbeat{
		kv:        kv,
		interval:  interval,
		tracker:   tracker,
		refresher: refresher,
		reloaders: reloaders,
	}
}

// Run ticks until ctx is done. A non-positive interval disables it.
func (h *Heartbeat) Run(ctx context.Context) error {
	if h.interval <= 0 {
		slog.InfoContext(ctx, "Heartbeat disabled")
		return nil
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Tick(ctx)
		}
	}
}

// Tick runs one heartbeat and reports whether the stores were reloaded.
func (h *Heartbeat) Tick(ctx context.Context) bool {
	reloaded := false
	marker, err := storage.ReadMarker(ctx, h.kv)
	if err != nil {
		slog.WarnContext(ctx, "Heartbeat could not read change marker", log.FieldError, err)
	} else if h.tracker.Observe(marker) {
		slog.InfoContext(ctx, "Shared state changed on disk, reloading", log.FieldMarker, marker, log.FieldOperation, log.OpReload)
		reloadAll(ctx, h.reloaders)
		reloaded = true
	}
	if h.refresher != nil {
		h.refresher.Refresh(ctx, "heartbeat")
	}
	return reloaded
}
