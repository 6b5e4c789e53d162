// Package discovery walks a news site with gocolly and reports every URL it requests.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/FridgeSeal/swarm/internal/classify"
	"github.com/FridgeSeal/swarm/internal/crawler"
	collyfetcher "github.com/FridgeSeal/swarm/internal/fetcher/colly"
)

const defaultRequestTimeout = 30 * time.Second

// Config restricts and paces the walk.
type Config struct {
	// Host is the only host visited. Empty means the root URL's host.
	Host string
	// PathPrefix limits visits to paths starting with it, e.g. "/news".
	PathPrefix    string
	MaxDepth      int
	Parallelism   int
	Delay         time.Duration
	UserAgent     string
	RespectRobots bool
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// Colly is a crawler.Discoverer backed by an async colly collector.
type Colly struct {
	cfg    Config
	logger *zap.Logger
}

var _ crawler.Discoverer = (*Colly)(nil)

// New returns a Colly discoverer.
func New(cfg Config, logger *zap.Logger) *Colly {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Colly{cfg: cfg, logger: logger.Named("discovery")}
}

// Discover crawls from root and sends one sighting per request. out is closed when the crawl is
// exhausted or ctx ends.
func (c *Colly) Discover(ctx context.Context, root string, out chan<- crawler.Sighting) error {
	defer close(out)

	rootURL, err := url.Parse(root)
	if err != nil {
		return fmt.Errorf("parse root url: %w", err)
	}
	host := c.cfg.Host
	if host == "" {
		host = rootURL.Hostname()
	}
	if host == "" {
		return fmt.Errorf("parse root url: %q has no host", root)
	}

	collector, err := c.newCollector(ctx, host)
	if err != nil {
		return err
	}

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		u := *r.URL
		sighting := crawler.Sighting{URL: &u, Segments: classify.Segments(&u)}
		select {
		case out <- sighting:
		case <-ctx.Done():
			r.Abort()
		}
	})
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		if err := e.Request.Visit(link); err != nil && !expectedVisitError(err) {
			c.logger.Debug("link not followed", zap.String("url", link), zap.Error(err))
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		fields := []zap.Field{zap.Error(err)}
		if r != nil {
			fields = append(fields, zap.Int("status_code", r.StatusCode))
			if r.Request != nil && r.Request.URL != nil {
				fields = append(fields, zap.String("url", r.Request.URL.String()))
			}
		}
		c.logger.Warn("discovery request failed", fields...)
	})

	c.logger.Info("discovery started", zap.String("root", root), zap.String("host", host),
		zap.String("path_prefix", c.cfg.PathPrefix))
	if err := collector.Visit(root); err != nil {
		return fmt.Errorf("visit root %s: %w", root, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("discovery interrupted: %w", err)
	}
	c.logger.Info("discovery finished", zap.String("root", root))
	return nil
}

func (c *Colly) newCollector(ctx context.Context, host string) (*colly.Collector, error) {
	filter, err := regexp.Compile(`^https?://` + regexp.QuoteMeta(host) + `(:\d+)?` + regexp.QuoteMeta(c.cfg.PathPrefix))
	if err != nil {
		return nil, fmt.Errorf("compile url filter: %w", err)
	}

	opts := []colly.CollectorOption{
		colly.AllowedDomains(host),
		colly.MaxDepth(c.cfg.MaxDepth),
		colly.Async(true),
		colly.URLFilters(filter),
		colly.StdlibContext(ctx),
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(c.cfg.UserAgent))
	}
	collector := colly.NewCollector(opts...)
	collector.AllowURLRevisit = false
	collector.IgnoreRobotsTxt = !c.cfg.RespectRobots
	collector.SetRequestTimeout(defaultRequestTimeout)

	transport := c.cfg.Transport
	if c.cfg.RespectRobots {
		transport = collyfetcher.NewRobotsTransport(transport)
	}
	if transport != nil {
		collector.WithTransport(transport)
	}

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: max(c.cfg.Parallelism, 1),
		Delay:       c.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("set collector limits: %w", err)
	}
	return collector, nil
}

// expectedVisitError reports rejections that are the filters doing their job.
func expectedVisitError(err error) bool {
	var alreadyVisited *colly.AlreadyVisitedError
	return errors.As(err, &alreadyVisited) ||
		errors.Is(err, colly.ErrForbiddenDomain) ||
		errors.Is(err, colly.ErrNoURLFiltersMatch) ||
		errors.Is(err, colly.ErrMaxDepth) ||
		errors.Is(err, colly.ErrRobotsTxtBlocked)
}
