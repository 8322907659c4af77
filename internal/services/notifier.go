package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"donations/internal/broadcast"
	"donations/internal/log"
	"donations/internal/storage"
)

// ChangeTracker remembers the newest change marker this process has seen,
// whether written locally or announced by another process.
type ChangeTracker struct {
	mu   sync.Mutex
	last int64
}

func NewChangeTracker(initial int64) *ChangeTracker {
	return &ChangeTracker{last: initial}
}

// Observe records marker and reports whether it is newer than anything seen.
func (t *ChangeTracker) Observe(marker int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if marker <= t.last {
		return false
	}
	t.last = marker
	return true
}

func (t *ChangeTracker) Last() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// BusNotifier stamps the change marker after a durable write, announces the
// change on the bus and refreshes the local view.
type BusNotifier struct {
	kv      storage.KV
	bus     broadcast.Bus
	origin  string
	tracker *ChangeTracker
	now     func() time.Time

	mu        sync.RWMutex
	refresher Refresher
}

func NewBusNotifier(kv storage.KV, bus broadcast.Bus, origin string, tracker *ChangeTracker, now func() time.Time) *BusNotifier {
	if now == nil {
		now = time.Now
	}
	return &BusNotifier{kv: kv, bus: bus, origin: origin, tracker: tracker, now: now}
}

// SetRefresher attaches the view to refresh after each change. Processes
// without a view leave it unset.
func (n *BusNotifier) SetRefresher(r Refresher) {
	n.mu.Lock()
	n.refresher = r
	n.mu.Unlock()
}

func (n *BusNotifier) Notify(ctx context.Context, scope broadcast.Scope, persisted bool) {
	if persisted {
		n.announce(ctx, scope)
	}

	n.mu.RLock()
	r := n.refresher
	n.mu.RUnlock()
	if r != nil {
		r.Refresh(ctx, string(scope))
	}
}

func (n *BusNotifier) announce(ctx context.Context, scope broadcast.Scope) {
	marker, err := storage.TouchMarker(ctx, n.kv, n.now())
	if err != nil {
		slog.WarnContext(ctx, "Failed to write change marker", log.FieldScope, scope, log.FieldError, err)
		return
	}
	n.tracker.Observe(marker)

	if n.bus == nil {
		return
	}
	msg := broadcast.Message{Scope: scope, Marker: marker, Origin: n.origin}
	if err := n.bus.Publish(ctx, msg); err != nil {
		// Other processes still catch up through the heartbeat.
		slog.ErrorContext(ctx, "Failed to publish change message", log.NewFields().
			WithChange(string(scope), marker, n.origin).
			WithError(err).ToSlice()...)
	}
}
