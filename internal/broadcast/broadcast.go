// Package broadcast carries "shared state changed" notifications between
// every process working on the same data.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"donations/internal/log"
)

type Scope string

const (
	ScopeDonations Scope = "donations"
	ScopeRates     Scope = "rates"
)

// ErrClosed is returned when publishing or subscribing on a closed bus.
var ErrClosed = errors.New("broadcast bus closed")

// Message announces a durable write. Marker is the change marker written
// alongside the data; Origin identifies the writing process.
type Message struct {
	Scope  Scope  `json:"scope"`
	Marker int64  `json:"marker"`
	Origin string `json:"origin"`
}

type Bus interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe returns a channel of messages that is closed when ctx is
	// done or the bus is closed.
	Subscribe(ctx context.Context) (<-chan Message, error)
	Close() error
}

const subscriberBuffer = 32

// Local is an in-process Bus. Slow subscribers lose messages rather than
// block publishers.
type Local struct {
	mu     sync.Mutex
	subs   map[chan Message]struct{}
	closed bool
	done   chan struct{}
}

func NewLocal() *Local {
	return &Local{
		subs: make(map[chan Message]struct{}),
		done: make(chan struct{}),
	}
}

func (l *Local) Publish(ctx context.Context, msg Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	for ch := range l.subs {
		select {
		case ch <- msg:
		default:
			slog.WarnContext(ctx, "Dropping broadcast message for slow subscriber",
				log.FieldScope, msg.Scope, log.FieldMarker, msg.Marker)
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context) (<-chan Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	ch := make(chan Message, subscriberBuffer)
	l.subs[ch] = struct{}{}
	go func() {
		select {
		case <-ctx.Done():
			l.remove(ch)
		case <-l.done:
		}
	}()
	return ch, nil
}

func (l *Local) remove(ch chan Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.subs[ch]; ok {
		delete(l.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (l *Local) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	for ch := range l.subs {
		delete(l.subs, ch)
		close(ch)
	}
	return nil
}
