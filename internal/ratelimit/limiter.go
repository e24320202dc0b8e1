// Package ratelimit serializes outbound requests per source with a
// minimum inter-request interval.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds limiter configuration.
type Config struct {
	// DefaultInterval is the minimum gap between requests to one source.
	DefaultInterval time.Duration

	// PerSource overrides the interval for specific source keys.
	PerSource map[string]time.Duration
}

// Limiter manages per-source pacing. One limiter instance is shared by all
// jobs in the process so concurrent jobs against the same source still
// serialize; the per-key state lives behind the mutex.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cfg      Config
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = time.Second
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		cfg:      cfg,
	}
}

// Wait blocks until at least the configured interval has elapsed since the
// previous grant for key, respecting the context. Arrival order is FIFO
// per key; no stronger fairness is guaranteed.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.interval(key)), 1)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", key, err)
	}
	return nil
}

// Interval reports the effective interval for key.
func (l *Limiter) Interval(key string) time.Duration {
	return l.interval(key)
}

func (l *Limiter) interval(key string) time.Duration {
	if d, ok := l.cfg.PerSource[key]; ok && d > 0 {
		return d
	}
	return l.cfg.DefaultInterval
}
