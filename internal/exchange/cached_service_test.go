package exchange

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls atomic.Int32
	rate  decimal.Decimal
	date  time.Time
	delay time.Duration
	err   error
}

func (p *countingProvider) RateAt(_ context.Context, _, _ string, _ time.Time) (Rate, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return Rate{}, p.err
	}
	return Rate{Value: p.rate, Date: p.date}, nil
}

func TestCachedProvider_RateAt(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

	t.Run("uses cache for same pair and day", func(t *testing.T) {
		t.Parallel()
		upstream := &countingProvider{rate: decimal.RequireFromString("1.35"), date: day}
		svc := NewCachedProvider(upstream, time.Hour)

		got1, err := svc.RateAt(context.Background(), "USD", "SGD", day.Add(3*time.Hour))
		require.NoError(t, err)
		got2, err := svc.RateAt(context.Background(), "usd", "sgd", day.Add(9*time.Hour))
		require.NoError(t, err)

		require.Equal(t, got1, got2)
		require.Equal(t, int32(1), upstream.calls.Load())
	})

	t.Run("cache key is per pair and day", func(t *testing.T) {
		t.Parallel()
		upstream := &countingProvider{rate: decimal.RequireFromString("1.2"), date: day}
		svc := NewCachedProvider(upstream, time.Hour)

		_, err := svc.RateAt(context.Background(), "USD", "SGD", day)
		require.NoError(t, err)
		_, err = svc.RateAt(context.Background(), "EUR", "SGD", day)
		require.NoError(t, err)
		_, err = svc.RateAt(context.Background(), "USD", "SGD", day.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Equal(t, int32(3), upstream.calls.Load())
	})

	t.Run("expired entry triggers refresh", func(t *testing.T) {
		t.Parallel()
		upstream := &countingProvider{rate: decimal.RequireFromString("1.1"), date: day}
		svc := NewCachedProvider(upstream, time.Nanosecond)

		_, err := svc.RateAt(context.Background(), "USD", "SGD", day)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
		_, err = svc.RateAt(context.Background(), "USD", "SGD", day)
		require.NoError(t, err)
		require.Equal(t, int32(2), upstream.calls.Load())
	})

	t.Run("concurrent misses share one upstream call", func(t *testing.T) {
		t.Parallel()
		upstream := &countingProvider{
			rate:  decimal.RequireFromString("1.3"),
			date:  day,
			delay: 20 * time.Millisecond,
		}
		svc := NewCachedProvider(upstream, time.Minute)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.RateAt(context.Background(), "USD", "SGD", day)
				require.NoError(t, err)
			}()
		}
		wg.Wait()

		require.Equal(t, int32(1), upstream.calls.Load())
	})

	t.Run("cancelled waiter does not cancel the shared fetch", func(t *testing.T) {
		t.Parallel()
		upstream := &countingProvider{
			rate:  decimal.RequireFromString("1.31"),
			date:  day,
			delay: 30 * time.Millisecond,
		}
		svc := NewCachedProvider(upstream, time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		_, err := svc.RateAt(ctx, "USD", "SGD", day)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		got, err := svc.RateAt(context.Background(), "USD", "SGD", day)
		require.NoError(t, err)
		require.Equal(t, "1.31", got.Value.String())
		require.Equal(t, int32(1), upstream.calls.Load())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		t.Parallel()
		upstream := &countingProvider{err: errors.New("boom")}
		svc := NewCachedProvider(upstream, time.Hour)

		_, err := svc.RateAt(context.Background(), "USD", "SGD", day)
		require.Error(t, err)
		_, err = svc.RateAt(context.Background(), "USD", "SGD", day)
		require.Error(t, err)
		require.Equal(t, int32(2), upstream.calls.Load())

		_, ok := svc.LastKnown("USD", "SGD")
		require.False(t, ok)
	})

	t.Run("rejects non-positive upstream rate", func(t *testing.T) {
		t.Parallel()
		upstream := &countingProvider{rate: decimal.Zero, date: day}
		svc := NewCachedProvider(upstream, time.Hour)

		_, err := svc.RateAt(context.Background(), "USD", "SGD", day)
		require.ErrorIs(t, err, errInvalidNonPositiveRate)
	})

	t.Run("requires inner provider", func(t *testing.T) {
		t.Parallel()
		svc := NewCachedProvider(nil, 0)
		_, err := svc.RateAt(context.Background(), "USD", "SGD", day)
		require.Error(t, err)
	})
}

func TestCachedProvider_LastKnown(t *testing.T) {
	t.Parallel()

	older := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC)
	upstream := &countingProvider{rate: decimal.RequireFromString("1.30"), date: newer}
	svc := NewCachedProvider(upstream, time.Hour)

	_, err := svc.RateAt(context.Background(), "USD", "SGD", newer)
	require.NoError(t, err)

	upstream.rate = decimal.RequireFromString("1.25")
	upstream.date = older
	_, err = svc.RateAt(context.Background(), "USD", "SGD", older)
	require.NoError(t, err)

	got, ok := svc.LastKnown("usd", "sgd")
	require.True(t, ok)
	require.Equal(t, newer, got.Date)
	require.Equal(t, decimal.RequireFromString("1.30"), got.Value)
}
