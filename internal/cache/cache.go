// Package cache memoises derived values between recomputations.
package cache

import (
	"context"
	"log/slog"
	"time"

	"donations/internal/log"
)

// Cache is a bounded key/value memo.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	// Purge drops every entry; stats are kept.
	Purge()
	Len() int
}

// Stats counts lookups since the cache was created.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Sweeper is a cache that can drop its expired entries on demand.
type Sweeper interface {
	Sweep() int
}

// Janitor sweeps registered caches on a fixed interval.
type Janitor struct {
	interval time.Duration
	caches   []Sweeper
}

func NewJanitor(interval time.Duration, caches ...Sweeper) *Janitor {
	return &Janitor{interval: interval, caches: caches}
}

// Run sweeps until ctx is done. A non-positive interval disables sweeping.
func (j *Janitor) Run(ctx context.Context) error {
	if j.interval <= 0 || len(j.caches) == 0 {
		return nil
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := j.SweepNow(); n > 0 {
				slog.DebugContext(ctx, "Expired cache entries removed", log.FieldCount, n)
			}
		}
	}
}

// SweepNow sweeps every cache once and returns how many entries went.
func (j *Janitor) SweepNow() int {
	n := 0
	for _, c := range j.caches {
		n += c.Sweep()
	}
	return n
}
