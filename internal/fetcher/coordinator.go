package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FridgeSeal/swarm/internal/archive"
	"github.com/FridgeSeal/swarm/internal/classify"
	"github.com/FridgeSeal/swarm/internal/metrics"
)

// Defaults applied when CoordinatorConfig fields are zero.
const (
	DefaultConcurrency = 8
	DefaultTimeout     = 15 * time.Second
)

const archiveContentType = "text/html; charset=utf-8"

// CoordinatorConfig bounds the fetch stage.
type CoordinatorConfig struct {
	Concurrency int
	Timeout     time.Duration
}

// Limiter delays a request until its host may be contacted again.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// BlobStore receives archived page bodies and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithLimiter waits on l before every request.
func WithLimiter(l Limiter) Option {
	return func(c *Coordinator) {
		c.limiter = l
	}
}

// WithArchive copies every fetched body to blobs under <prefix>/<run id>/<article id>.html.
func WithArchive(blobs BlobStore, prefix string) Option {
	return func(c *Coordinator) {
		c.archive = blobs
		c.archivePrefix = prefix
	}
}

type runIDKey struct{}

// WithRunID tags ctx with the crawl run the fetches belong to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run id stored by WithRunID, or "adhoc".
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}
	return "adhoc"
}

// Coordinator downloads many content pages with bounded concurrency.
type Coordinator struct {
	page          PageFetcher
	cfg           CoordinatorConfig
	logger        *zap.Logger
	limiter       Limiter
	archive       BlobStore
	archivePrefix string
}

// NewCoordinator wires a Coordinator around a single-page fetcher.
func NewCoordinator(page PageFetcher, cfg CoordinatorConfig, logger *zap.Logger, opts ...Option) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		page:   page,
		cfg:    cfg,
		logger: logger.Named("fetcher"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type target struct {
	id  string
	url *url.URL
}

// FetchAll fetches every URL and returns the bodies that arrived, keyed by article id. Failed URLs are
// logged and left out; one failure never stops the others.
func (c *Coordinator) FetchAll(ctx context.Context, urls []*url.URL) map[string][]byte {
	targets := c.plan(urls)

	var (
		mu     sync.Mutex
		bodies = make(map[string][]byte, len(targets))
	)
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			body, ok := c.fetchOne(ctx, t)
			if !ok {
				return nil
			}
			mu.Lock()
			bodies[t.id] = body
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.logger.Info("fetch stage complete",
		zap.Int("requested", len(targets)),
		zap.Int("fetched", len(bodies)))
	return bodies
}

// plan orders URLs, derives ids and drops malformed URLs and id collisions.
func (c *Coordinator) plan(urls []*url.URL) []target {
	ordered := make([]*url.URL, 0, len(urls))
	for _, u := range urls {
		if u != nil {
			ordered = append(ordered, u)
		}
	}
	slices.SortFunc(ordered, func(a, b *url.URL) int {
		switch as, bs := a.String(), b.String(); {
		case as < bs:
			return -1
		case as > bs:
			return 1
		}
		return 0
	})

	claimed := make(map[string]string, len(ordered))
	targets := make([]target, 0, len(ordered))
	for _, u := range ordered {
		id, err := classify.ArticleID(u)
		if err != nil {
			c.logger.Debug("skipping url without article id", zap.String("url", u.String()), zap.Error(err))
			continue
		}
		if winner, dup := claimed[id]; dup {
			c.logger.Warn("article id collision",
				zap.String("id", id),
				zap.String("kept", winner),
				zap.String("dropped", u.String()))
			metrics.ObserveArticleIDCollision()
			continue
		}
		claimed[id] = u.String()
		targets = append(targets, target{id: id, url: u})
	}
	return targets
}

func (c *Coordinator) fetchOne(ctx context.Context, t target) ([]byte, bool) {
	rawURL := t.url.String()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			c.recordFailure(rawURL, err)
			return nil, false
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	page, err := c.page.Fetch(fetchCtx, rawURL)
	if err == nil && fetchCtx.Err() != nil {
		err = fmt.Errorf("fetch %s: %w", rawURL, fetchCtx.Err())
	}
	if err != nil {
		c.recordFailure(rawURL, err)
		return nil, false
	}

	metrics.ObserveFetch("ok", len(page.Body))
	if page.RobotsStatus == RobotsStatusIndeterminate {
		c.logger.Debug("robots.txt unavailable, fetched under allow-all",
			zap.String("url", rawURL), zap.String("reason", page.RobotsReason))
	}
	c.archivePage(ctx, t.id, page.Body)
	return page.Body, true
}

func (c *Coordinator) recordFailure(rawURL string, err error) {
	status := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		status = "timeout"
	}
	metrics.ObserveFetch(status, 0)
	c.logger.Warn("fetch failed", zap.String("url", rawURL), zap.String("status", status), zap.Error(err))
}

func (c *Coordinator) archivePage(ctx context.Context, id string, body []byte) {
	if c.archive == nil {
		return
	}
	key := archive.PageKey(c.archivePrefix, RunID(ctx), id)
	uri, err := c.archive.PutObject(ctx, key, archiveContentType, body)
	if err != nil {
		c.logger.Warn("archive page failed", zap.String("id", id), zap.String("path", key), zap.Error(err))
		return
	}
	c.logger.Debug("archived page", zap.String("id", id), zap.String("uri", uri))
}
