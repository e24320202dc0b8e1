package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_EnforcesInterval(t *testing.T) {
	l := New(Config{DefaultInterval: 100 * time.Millisecond})
	ctx := context.Background()

	// First grant is immediate (burst of one).
	require.NoError(t, l.Wait(ctx, "royalroad"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "royalroad"))
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected second grant ~100ms after first, got %v", elapsed)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New(Config{DefaultInterval: time.Second})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "royalroad"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "novelfull"))
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("different key blocked unexpectedly for %v", elapsed)
	}
}

func TestLimiter_PerSourceOverride(t *testing.T) {
	l := New(Config{
		DefaultInterval: time.Second,
		PerSource:       map[string]time.Duration{"fast": 10 * time.Millisecond},
	})
	require.Equal(t, 10*time.Millisecond, l.Interval("fast"))
	require.Equal(t, time.Second, l.Interval("other"))
}

func TestLimiter_ConcurrentCallersSerialize(t *testing.T) {
	l := New(Config{DefaultInterval: 50 * time.Millisecond})
	ctx := context.Background()

	var mu sync.Mutex
	var grants []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Wait(ctx, "shared"))
			mu.Lock()
			grants = append(grants, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, grants, 3)
	// Grants for the same key must be at least the interval apart,
	// regardless of which job requested them.
	first, last := grants[0], grants[0]
	for _, g := range grants[1:] {
		if g.Before(first) {
			first = g
		}
		if g.After(last) {
			last = g
		}
	}
	if spread := last.Sub(first); spread < 80*time.Millisecond {
		t.Errorf("expected grants spread over >=100ms, got %v", spread)
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := New(Config{DefaultInterval: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "slow"))
	require.Error(t, l.Wait(ctx, "slow"))
}
