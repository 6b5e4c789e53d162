// Package ratelimit implements per-host token bucket politeness for page fetches.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/FridgeSeal/swarm/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// RatePerHost is the sustained requests per second allowed for one host. Zero or less disables
	// limiting.
	RatePerHost float64
	// Burst is the bucket size; values below one are raised to one.
	Burst int
}

// Limiter hands out one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RatePerHost)
	if cfg.RatePerHost <= 0 {
		r = rate.Inf
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    max(cfg.Burst, 1),
	}
}

// Wait blocks until rawURL's host has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := metrics.SanitizeSite(rawURL)
	limiter := l.forHost(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not delays.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	return limiter
}

// Hosts reports how many hosts currently have a bucket.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
