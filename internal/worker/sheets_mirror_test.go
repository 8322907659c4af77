package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donations/internal/core"
)

type fakeWriter struct {
	mu     sync.Mutex
	writes [][][]any
	fail   bool
}

func (f *fakeWriter) WriteRows(_ context.Context, grid [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("quota exceeded")
	}
	f.writes = append(f.writes, grid)
	return nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeWriter) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func grid() [][]any {
	return [][]any{{"اسم المتبرع"}, {"Ali"}}
}

func TestSheetsMirrorSync(t *testing.T) {
	w := &fakeWriter{}
	m := NewSheetsMirror(w, grid, time.Minute, nil)

	require.NoError(t, m.Sync(context.Background()))
	require.Equal(t, 1, w.count())
	assert.Equal(t, "Ali", w.writes[0][1][0])

	w.setFail(true)
	assert.Error(t, m.Sync(context.Background()))
}

func TestSheetsMirrorRunWritesAfterChanges(t *testing.T) {
	w := &fakeWriter{}
	m := NewSheetsMirror(w, grid, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, w.count(), "idle mirror must not rewrite the sheet")

	m.ViewUpdated(ctx, core.View{})
	m.ViewUpdated(ctx, core.View{})
	require.Eventually(t, func() bool { return w.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestSheetsMirrorRetriesFailedWrites(t *testing.T) {
	w := &fakeWriter{fail: true}
	m := NewSheetsMirror(w, grid, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, w.count())

	w.setFail(false)
	require.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSheetsMirrorDisabled(t *testing.T) {
	m := NewSheetsMirror(&fakeWriter{}, grid, 0, nil)
	assert.NoError(t, m.Run(context.Background()))
}
