// Package collyfetcher implements fetcher.PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/FridgeSeal/swarm/internal/fetcher"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher performs one-off page GETs through cloned colly collectors.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	robots        *RobotsTransport
	baseCollector *colly.Collector
}

var _ fetcher.PageFetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher sharing one pooled transport across fetches.
func New(cfg Config) *Fetcher {
	return newWithTransport(cfg, newHTTPTransport())
}

func newWithTransport(cfg Config, transport http.RoundTripper) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	// Clones share the visited set; every fetch is a fresh, explicit request.
	c.AllowURLRevisit = true
	c.DetectCharset = true
	f := &Fetcher{
		cfg:       cfg,
		transport: transport,
	}
	if cfg.RespectRobots {
		f.robots = NewRobotsTransport(transport)
		f.transport = f.robots
	}
	c.WithTransport(f.transport)
	f.baseCollector = c
	return f
}

// Robots returns the robots-aware transport, or nil when robots.txt is ignored.
func (f *Fetcher) Robots() *RobotsTransport {
	return f.robots
}

// Fetch executes a single HTTP GET. Non-2xx responses yield a *fetcher.StatusError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (fetcher.Page, error) {
	var (
		result   fetcher.Page
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx, rawURL, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return fetcher.Page{}, err
	}
	if u, err := url.Parse(rawURL); err == nil {
		f.robots.annotate(&result, u.Hostname())
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	rawURL string,
	start time.Time,
	result *fetcher.Page,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	f.configureCollectorHooks(ctx, collector, rawURL, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	ctx context.Context,
	hooks collectorHooks,
	rawURL string,
	start time.Time,
	result *fetcher.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode > 299 {
			*fetchErr = &fetcher.StatusError{URL: rawURL, StatusCode: r.StatusCode}
			return
		}
		page := fetcher.Page{
			URL:        rawURL,
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		if r.Request != nil && r.Request.URL != nil {
			page.FinalURL = r.Request.URL.String()
		}
		if r.Headers != nil {
			page.Headers = r.Headers.Clone()
		}
		*result = page
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && (r.StatusCode < 200 || r.StatusCode > 299) {
			*fetchErr = &fetcher.StatusError{URL: rawURL, StatusCode: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		switch {
		case *fetchErr != nil:
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		case err != nil:
			return fmt.Errorf("colly visit failed: %w", err)
		case ctx.Err() != nil:
			return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
