package vendorclient

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSucceeds(t *testing.T) {
	c := New("V-T", Config{CallsPerSecond: 100}, func(ctx context.Context, method string, params any) (any, error) {
		return []any{1, 2, 3}, nil
	}, zerolog.Nop())
	defer c.Close()

	data, err := c.Call(context.Background(), "get_trade_calendar", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, data)
}

func TestCallRetriesTransientThenSucceeds(t *testing.T) {
	var attempts int32
	c := New("V-T", Config{CallsPerSecond: 100, BaseBackoff: time.Millisecond}, func(ctx context.Context, method string, params any) (any, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return nil, NewTransientError(errors.New("network blip"))
		}
		return "ok", nil
	}, zerolog.Nop())
	defer c.Close()

	data, err := c.Call(context.Background(), "get_future_daily", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", data)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestCallRetriesRateLimitThenSucceeds(t *testing.T) {
	var attempts int32
	c := New("V-T", Config{CallsPerSecond: 100, BaseBackoff: time.Millisecond}, func(ctx context.Context, method string, params any) (any, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			return nil, NewRateLimitError(errors.New("rate limited"))
		}
		return "ok", nil
	}, zerolog.Nop())
	defer c.Close()

	data, err := c.Call(context.Background(), "get_future_daily", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", data)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestCallDoesNotRetryAuthError(t *testing.T) {
	var attempts int32
	wantErr := NewAuthError(errors.New("bad token"))
	c := New("V-T", Config{CallsPerSecond: 100}, func(ctx context.Context, method string, params any) (any, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, wantErr
	}, zerolog.Nop())
	defer c.Close()

	_, err := c.Call(context.Background(), "get_stock_list", nil)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestCallDoesNotRetryNonTransient(t *testing.T) {
	var attempts int32
	wantErr := errors.New("auth failure")
	c := New("V-T", Config{CallsPerSecond: 100}, func(ctx context.Context, method string, params any) (any, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, wantErr
	}, zerolog.Nop())
	defer c.Close()

	_, err := c.Call(context.Background(), "get_stock_list", nil)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestCallExhaustsRetries(t *testing.T) {
	c := New("V-T", Config{CallsPerSecond: 100, MaxAttempts: 2, BaseBackoff: time.Millisecond}, func(ctx context.Context, method string, params any) (any, error) {
		return nil, NewTransientError(errors.New("still down"))
	}, zerolog.Nop())
	defer c.Close()

	_, err := c.Call(context.Background(), "get_future_contracts", nil)
	assert.Error(t, err)
}

func TestCallRespectsCancellation(t *testing.T) {
	c := New("V-T", Config{CallsPerSecond: 0.01}, func(ctx context.Context, method string, params any) (any, error) {
		return "should not reach", nil
	}, zerolog.Nop())
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, "get_trade_calendar", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitPacing(t *testing.T) {
	// 1 call/second; ten calls should take at least ~9 seconds of pacing.
	// Exercised at a scaled-down rate here to keep the test fast: at 50
	// calls/second with a burst of one, five calls must span at least four
	// 20ms intervals.
	c := New("V-T", Config{CallsPerSecond: 50}, func(ctx context.Context, method string, params any) (any, error) {
		return nil, nil
	}, zerolog.Nop())
	defer c.Close()

	start := time.Now()
	for i := 0; i < 5; i++ {
		_, err := c.Call(context.Background(), "m", nil)
		require.NoError(t, err)
	}
	assert.True(t, time.Since(start) >= 4*(time.Second/50))
}
