package storage

import (
	"context"
	"sync"
)

// Memory is a process-local KV. Data is lost on exit.
type Memory struct {
	mu         sync.Mutex
	items      map[string][]byte
	failWrites bool
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return ErrWriteFailed
	}
	m.items[key] = append([]byte(nil), value...)
	return nil
}

// FailWrites makes every following Set fail until called with false.
func (m *Memory) FailWrites(fail bool) {
	m.mu.Lock()
	m.failWrites = fail
	m.mu.Unlock()
}

func (m *Memory) Close() error { return nil }
