// Package retry wraps fallible source operations with bounded exponential
// backoff and a fixed retryability table.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net"
	"syscall"
	"time"

	"bindery/internal/source"
)

// ErrAttemptsExhausted marks failures that were retryable but ran out of
// attempts. The last underlying error is wrapped alongside it.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Config controls the policy.
type Config struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff sleep.
	MaxDelay time.Duration

	// OnRetry, when set, is invoked before each backoff sleep.
	OnRetry func(label string, attempt int, delay time.Duration, err error)
}

// Policy implements jittered exponential backoff over a classified
// operation.
type Policy struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a policy, filling in defaults for unset fields.
func New(cfg Config) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Policy{cfg: cfg, sleep: sleepCtx}
}

// Do runs fn until it succeeds, fails terminally, or attempts run out.
// Terminal failures pass through unchanged; exhaustion wraps the last
// error with ErrAttemptsExhausted so callers treat it as fatal.
func (p *Policy) Do(ctx context.Context, label string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.cfg.MaxAttempts-1 {
			break
		}

		delay := p.Backoff(attempt)
		if p.cfg.OnRetry != nil {
			p.cfg.OnRetry(label, attempt+1, delay, lastErr)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
	}
	return fmt.Errorf("%s after %d attempts: %w: %w", label, p.cfg.MaxAttempts, ErrAttemptsExhausted, lastErr)
}

// Backoff returns the wait before the next attempt: half the capped
// exponential delay plus random jitter up to the other half.
func (p *Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.cfg.MaxDelay) {
		delay = float64(p.cfg.MaxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

// Retryable applies the fixed classification table. Classified source
// errors are decided by kind; otherwise only recognizable transient
// network failures qualify.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch source.KindOf(err) {
	case source.KindTransport, source.KindRateLimited:
		return true
	case source.KindNotFound, source.KindAuth, source.KindMalformed, source.KindContent:
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
