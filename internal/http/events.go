package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"donations/internal/core"
	"donations/internal/log"
)

const keepAliveInterval = 25 * time.Second

// viewEvent is the payload of a "view" server-sent event. Browsers only
// need to know that something changed; they re-fetch the page themselves.
type viewEvent struct {
	GeneratedAt time.Time            `json:"generated_at"`
	TotalCount  int                  `json:"total_count"`
	Totals      []core.CurrencyTotal `json:"totals"`
}

// EventHub fans refreshed views out to connected browsers over
// server-sent events. It implements services.ViewSink.
type EventHub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	closed  bool
	logger  *log.Logger
}

// NewEventHub returns a hub that logs as the events component. Refreshes
// reach it outside any request, so it cannot rely on a request logger.
func NewEventHub(logger *log.Logger) *EventHub {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &EventHub{
		clients: make(map[chan []byte]struct{}),
		logger:  logger.WithComponent(log.ComponentEvents),
	}
}

// ViewUpdated queues v for every client. Slow clients miss intermediate
// updates rather than blocking the refresh.
func (h *EventHub) ViewUpdated(ctx context.Context, v core.View) {
	payload, err := json.Marshal(viewEvent{GeneratedAt: v.GeneratedAt, TotalCount: v.TotalCount, Totals: v.Totals})
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to encode view event", log.FieldError, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for ch := range h.clients {
		select {
		case ch <- payload:
		default:
			dropped++
		}
	}
	h.logger.DebugContext(ctx, "View pushed to streams", log.FieldCount, len(h.clients), log.FieldDropped, dropped)
}

// Clients returns the number of connected streams.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close ends every open stream. Later subscriptions are refused.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.clients {
		close(ch)
		delete(h.clients, ch)
	}
}

func (h *EventHub) subscribe() (chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan []byte, 4)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *EventHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch, ok := h.subscribe()
	if !ok {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "retry: 3000\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: view\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
