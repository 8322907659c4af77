package services

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"donations/internal/broadcast"
	"donations/internal/core"
)

type mockBus struct {
	mock.Mock
}

func (m *mockBus) Publish(ctx context.Context, msg broadcast.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockBus) Subscribe(ctx context.Context) (<-chan broadcast.Message, error) {
	args := m.Called(ctx)
	ch, _ := args.Get(0).(<-chan broadcast.Message)
	return ch, args.Error(1)
}

func (m *mockBus) Close() error {
	return m.Called().Error(0)
}

type notification struct {
	scope     broadcast.Scope
	persisted bool
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (r *recordingNotifier) Notify(_ context.Context, scope broadcast.Scope, persisted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, notification{scope, persisted})
}

func (r *recordingNotifier) Calls() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.calls...)
}

type countingRefresher struct {
	mu      sync.Mutex
	reasons []string
}

func (c *countingRefresher) Refresh(_ context.Context, reason string) core.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasons = append(c.reasons, reason)
	return core.View{}
}

func (c *countingRefresher) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reasons)
}

type countingReloader struct {
	mu    sync.Mutex
	count int
}

func (c *countingReloader) Reload(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return nil
}

func (c *countingReloader) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

type sinkFunc func(ctx context.Context, v core.View)

func (f sinkFunc) ViewUpdated(ctx context.Context, v core.View) { f(ctx, v) }
