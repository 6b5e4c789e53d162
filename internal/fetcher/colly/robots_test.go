package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FridgeSeal/swarm/internal/fetcher"
	"github.com/FridgeSeal/swarm/internal/metrics"
)

func newTestRobotsTransport(base http.RoundTripper) *RobotsTransport {
	rt := NewRobotsTransport(base)
	rt.backoff = []time.Duration{0, 0, 0}
	return rt
}

func TestRobotsFallsBackToAllowAll(t *testing.T) {
	t.Parallel()
	metrics.Init()

	base := &stubRoundTripper{results: []roundTripResult{{err: context.DeadlineExceeded}}}
	rt := newTestRobotsTransport(base)

	req := httptest.NewRequest(http.MethodGet, "https://www.abc.net.au/robots.txt", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, resp.Body.Close()) })

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, allowAllRobots, string(body))
	require.Equal(t, 4, base.calls)

	reason, ok := rt.Fallback("www.abc.net.au")
	require.True(t, ok)
	require.Equal(t, robotsFallbackReasonTLSHandshake, reason)

	page := fetcher.Page{}
	rt.annotate(&page, "www.abc.net.au")
	require.Equal(t, fetcher.RobotsStatusIndeterminate, page.RobotsStatus)
}

func TestRobotsStopsRetryingAfterSuccess(t *testing.T) {
	t.Parallel()
	metrics.Init()

	base := &stubRoundTripper{results: []roundTripResult{
		{err: context.DeadlineExceeded},
		{resp: httptest.NewRecorder().Result()},
	}}
	rt := newTestRobotsTransport(base)

	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, 2, base.calls)

	_, ok := rt.Fallback("example.com")
	require.False(t, ok)
	page := fetcher.Page{}
	rt.annotate(&page, "example.com")
	require.Equal(t, fetcher.RobotsStatusUnknown, page.RobotsStatus)
}

func TestRobotsNonTransientErrorFails(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: errors.New("connection refused")}}}
	rt := newTestRobotsTransport(base)

	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	resp, err := rt.RoundTrip(req)
	if resp != nil {
		require.NoError(t, resp.Body.Close())
	}
	require.Error(t, err)
	require.Equal(t, 1, base.calls)
}

func TestRobotsPassesOtherPathsThrough(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: context.DeadlineExceeded}}}
	rt := newTestRobotsTransport(base)

	req := httptest.NewRequest(http.MethodGet, "https://example.com/news/x", nil)
	resp, err := rt.RoundTrip(req)
	if resp != nil {
		require.NoError(t, resp.Body.Close())
	}
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, base.calls)
}

type roundTripResult struct {
	resp *http.Response
	err  error
}

type stubRoundTripper struct {
	results []roundTripResult
	calls   int
}

func (s *stubRoundTripper) RoundTrip(_ *http.Request) (*http.Response, error) {
	defer func() { s.calls++ }()
	idx := min(s.calls, len(s.results)-1)
	res := s.results[idx]
	return res.resp, res.err
}
