// Package ratelimit throttles state-changing requests per client.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limiter gives every client a token bucket holding RequestsPerMinute
// tokens that refills continuously over one minute.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	perMin  float64
	idleTTL time.Duration
	sweep   time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens float64
	seen   time.Time
}

type Config struct {
	RequestsPerMinute int
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
}

// DefaultConfig allows a busy admin to record a donation every second.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 120,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter creates a limiter and starts forgetting idle clients in the
// background until Stop is called.
func NewLimiter(config Config) *Limiter {
	l := newLimiter(config, time.Now)
	go l.forgetIdle()
	return l
}

func newLimiter(config Config, now func() time.Time) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		perMin:  float64(config.RequestsPerMinute),
		idleTTL: 10 * time.Minute,
		sweep:   config.CleanupInterval,
		now:     now,
		stop:    make(chan struct{}),
	}
}

// Take spends one token for key. When the bucket is empty it reports how
// long until the next token.
func (l *Limiter) Take(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.perMin, seen: now}
		l.buckets[key] = b
	}
	elapsed := now.Sub(b.seen)
	b.seen = now
	b.tokens = math.Min(l.perMin, b.tokens+elapsed.Minutes()*l.perMin)

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	return false, time.Duration(float64(time.Minute) * (1 - b.tokens) / l.perMin)
}

// Allow is Take without the wait.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.Take(key)
	return ok
}

func (l *Limiter) forgetIdle() {
	t := time.NewTicker(l.sweep)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.prune()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleTTL)
	n := 0
	for k, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Clients returns how many clients are tracked.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop ends the background cleanup. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware limits unsafe methods only; page views and downloads pass
// through. Rejected requests get a Retry-After header and are handed to
// onLimit, or answered with a plain 429 when onLimit is nil.
func (l *Limiter) Middleware(clientKey func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := l.Take(clientKey(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			if onLimit == nil {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			onLimit(w, r)
		})
	}
}
