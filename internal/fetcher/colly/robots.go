package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/FridgeSeal/swarm/internal/fetcher"
	"github.com/FridgeSeal/swarm/internal/metrics"
)

const robotsFallbackReasonTLSHandshake = "TLS handshake timeout"

const allowAllRobots = "User-agent: *\nAllow: /"

var defaultRobotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// RobotsTransport retries robots.txt requests that fail with a transient TLS or timeout error and,
// once retries are spent, answers with an allow-all policy instead of failing the page. Hosts that
// fell back are remembered so callers can flag their pages.
type RobotsTransport struct {
	base    http.RoundTripper
	backoff []time.Duration

	mu       sync.RWMutex
	fallback map[string]string
}

// NewRobotsTransport wraps base.
func NewRobotsTransport(base http.RoundTripper) *RobotsTransport {
	if base == nil {
		base = newHTTPTransport()
	}
	return &RobotsTransport{
		base:     base,
		backoff:  defaultRobotsBackoff,
		fallback: make(map[string]string),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *RobotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots transport base roundtrip: %w", err)
		}
		return resp, nil
	}
	return t.probe(req)
}

func (t *RobotsTransport) probe(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTransientTLSError(err) {
			return nil, fmt.Errorf("robots roundtrip non-transient: %w", err)
		}
		if attempt >= len(t.backoff) {
			t.markFallback(req.URL.Hostname(), robotsFallbackReasonTLSHandshake)
			return allowAllResponse(req), nil
		}
		if err := sleepWithContext(req.Context(), t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots roundtrip backoff sleep: %w", err)
		}
	}
}

func (t *RobotsTransport) markFallback(host, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.fallback[host]; seen {
		return
	}
	t.fallback[host] = reason
	metrics.ObserveProbeTLSHandshakeTimeout()
}

// Fallback reports whether host's robots.txt was replaced by allow-all, and why.
func (t *RobotsTransport) Fallback(host string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	reason, ok := t.fallback[host]
	return reason, ok
}

// annotate marks page as robots-indeterminate when its host fell back.
func (t *RobotsTransport) annotate(page *fetcher.Page, host string) {
	if t == nil || page == nil {
		return
	}
	if reason, ok := t.Fallback(host); ok {
		page.RobotsStatus = fetcher.RobotsStatusIndeterminate
		page.RobotsReason = reason
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff sleep context: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isTransientTLSError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
