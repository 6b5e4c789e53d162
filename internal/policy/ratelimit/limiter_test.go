package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FridgeSeal/swarm/internal/metrics"
)

func TestLimiterDelaysSameHost(t *testing.T) {
	metrics.Init()
	ctx := context.Background()
	// 10 RPS = one token every 100ms, starting with one.
	l := New(Config{RatePerHost: 10, Burst: 1})

	require.NoError(t, l.Wait(ctx, "https://www.abc.net.au/news/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://WWW.abc.net.au/news/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// A different host has its own bucket.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://example.com/"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, 2, l.Hosts())
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 100 {
		require.NoError(t, l.Wait(ctx, "https://www.abc.net.au/"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHonoursContext(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{RatePerHost: 0.01, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://slow.example/"))
}

func TestHostsShareBucketAcrossCaseAndPort(t *testing.T) {
	t.Parallel()

	l := New(Config{RatePerHost: 100, Burst: 5})
	require.NoError(t, l.Wait(context.Background(), "https://Example.com:8443/a"))
	require.NoError(t, l.Wait(context.Background(), "https://example.com/b"))
	require.Equal(t, 1, l.Hosts())
}
