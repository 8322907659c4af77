package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Keys of the shared state.
const (
	KeyDonations  = "donations"
	KeyRates      = "exchange_rates"
	KeyLastUpdate = "last_update"
)

// ErrWriteFailed is returned by Memory when write faults are injected.
var ErrWriteFailed = errors.New("storage write failed")

// KV is the durable key-value store shared by every process that works on
// the same data.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// TouchMarker records that the shared state changed and returns the new
// marker. Markers are unix millis and never go backwards, even when two
// writes land in the same millisecond.
func TouchMarker(ctx context.Context, kv KV, now time.Time) (int64, error) {
	prev, err := ReadMarker(ctx, kv)
	if err != nil {
		return 0, err
	}
	marker := now.UnixMilli()
	if marker <= prev {
		marker = prev + 1
	}
	if err := kv.Set(ctx, KeyLastUpdate, []byte(strconv.FormatInt(marker, 10))); err != nil {
		return 0, fmt.Errorf("write change marker: %w", err)
	}
	return marker, nil
}

// ReadMarker returns the last change marker, or 0 when none was written.
// An unparseable marker counts as 0.
func ReadMarker(ctx context.Context, kv KV) (int64, error) {
	raw, ok, err := kv.Get(ctx, KeyLastUpdate)
	if err != nil {
		return 0, fmt.Errorf("read change marker: %w", err)
	}
	if !ok {
		return 0, nil
	}
	marker, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, nil
	}
	return marker, nil
}
