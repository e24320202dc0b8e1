package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bindery/internal/source"
)

func newFastPolicy(cfg Config) *Policy {
	p := New(cfg)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestPolicy_RetriesTransportUntilExhausted(t *testing.T) {
	calls := 0
	p := newFastPolicy(Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	err := p.Do(context.Background(), "fetch chapter", func(context.Context) error {
		calls++
		return source.NewError(source.KindTransport, "get", "https://a.example/ch/1", errors.New("timeout"))
	})

	require.Error(t, err)
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	require.Equal(t, 3, calls)
}

func TestPolicy_NeverRetriesNotFound(t *testing.T) {
	calls := 0
	p := newFastPolicy(Config{MaxAttempts: 5})

	err := p.Do(context.Background(), "fetch chapter", func(context.Context) error {
		calls++
		return source.NewError(source.KindNotFound, "get", "https://a.example/ch/1", errors.New("404"))
	})

	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAttemptsExhausted)
	require.Equal(t, source.KindNotFound, source.KindOf(err))
	require.Equal(t, 1, calls)
}

func TestPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	retries := 0
	p := newFastPolicy(Config{
		MaxAttempts: 4,
		OnRetry: func(label string, attempt int, _ time.Duration, err error) {
			retries++
			require.Equal(t, "fetch catalog", label)
			require.Equal(t, retries, attempt)
			require.Error(t, err)
		},
	})

	err := p.Do(context.Background(), "fetch catalog", func(context.Context) error {
		calls++
		if calls < 3 {
			return source.NewError(source.KindRateLimited, "get", "u", errors.New("429"))
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, 2, retries)
}

func TestPolicy_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := newFastPolicy(Config{MaxAttempts: 3}).Do(ctx, "fetch", func(context.Context) error {
		calls++
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls)
}

func TestPolicy_BackoffIsCappedWithJitter(t *testing.T) {
	p := New(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: 400 * time.Millisecond})

	for attempt := 0; attempt < 10; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 400*time.Millisecond)
	}
	// Early attempts stay near the base delay.
	require.LessOrEqual(t, p.Backoff(0), 100*time.Millisecond)
}

func TestRetryable_Table(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", source.NewError(source.KindTransport, "get", "u", nil), true},
		{"rate limited", source.NewError(source.KindRateLimited, "get", "u", nil), true},
		{"not found", source.NewError(source.KindNotFound, "get", "u", nil), false},
		{"auth", source.NewError(source.KindAuth, "get", "u", nil), false},
		{"malformed", source.NewError(source.KindMalformed, "get", "u", nil), false},
		{"content", source.NewError(source.KindContent, "parse", "u", nil), false},
		{"context canceled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
