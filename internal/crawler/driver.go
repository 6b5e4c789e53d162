package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FridgeSeal/swarm/internal/article"
	"github.com/FridgeSeal/swarm/internal/classify"
	"github.com/FridgeSeal/swarm/internal/clock/system"
	"github.com/FridgeSeal/swarm/internal/fetcher"
	iduuid "github.com/FridgeSeal/swarm/internal/id/uuid"
	"github.com/FridgeSeal/swarm/internal/metrics"
	"github.com/FridgeSeal/swarm/internal/telemetry"
)

const (
	defaultSightingBuffer = 64
	finishTimeout         = 10 * time.Second
)

var (
	// ErrNoDomain is returned when no crawl domain is configured.
	ErrNoDomain = errors.New("no crawl domain configured")
	// ErrMissingDependency is returned by NewDriver when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing crawler dependency")
)

// DriverConfig holds run-level settings.
type DriverConfig struct {
	// Domains are root URLs; only the first is crawled.
	Domains     []string
	RunTimeout  time.Duration
	NotifyTopic string
	// SightingBuffer sizes the channel between discovery and classification.
	SightingBuffer int
}

// Dependencies are the collaborators of a run. Ledger, Publisher, IDGen and Clock are optional.
type Dependencies struct {
	Discoverer  Discoverer
	Classifier  Classifier
	Coordinator Coordinator
	Extractor   Extractor
	Persister   Persister
	Ledger      Ledger
	Publisher   Publisher
	IDGen       IDGenerator
	Clock       Clock
}

// Driver runs crawl passes.
type Driver struct {
	cfg    DriverConfig
	deps   Dependencies
	logger *zap.Logger
	tracer trace.Tracer
}

// NewDriver validates deps and returns a Driver.
func NewDriver(cfg DriverConfig, deps Dependencies, logger *zap.Logger) (*Driver, error) {
	required := map[string]any{
		"discoverer":  deps.Discoverer,
		"classifier":  deps.Classifier,
		"coordinator": deps.Coordinator,
		"extractor":   deps.Extractor,
		"persister":   deps.Persister,
	}
	for name, dep := range required {
		if dep == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingDependency, name)
		}
	}
	if deps.IDGen == nil {
		deps.IDGen = iduuid.NewGenerator()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if cfg.SightingBuffer <= 0 {
		cfg.SightingBuffer = defaultSightingBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("crawler"),
		tracer: telemetry.Tracer("crawler"),
	}, nil
}

// Run performs one crawl. The report is returned even when err is non-nil.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	report := Report{StartedAt: d.deps.Clock.Now()}
	runID, err := d.deps.IDGen.NewID()
	if err != nil {
		return d.fail(report, fmt.Errorf("generate run id: %w", err))
	}
	report.RunID = runID
	if len(d.cfg.Domains) == 0 {
		return d.fail(report, ErrNoDomain)
	}
	report.Root = d.cfg.Domains[0]
	logger := d.logger.With(zap.String("run_id", runID), zap.String("root", report.Root))

	runCtx := ctx
	if d.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.cfg.RunTimeout)
		defer cancel()
	}
	runCtx, span := d.tracer.Start(runCtx, "crawl.run", trace.WithAttributes(
		attribute.String("crawl.run_id", runID),
		attribute.String("crawl.root", report.Root),
	))
	runCtx = fetcher.WithRunID(runCtx, runID)

	logger.Info("crawl run started")
	runErr := d.run(runCtx, logger, &report)
	telemetry.EndSpan(span, runErr)

	report.FinishedAt = d.deps.Clock.Now()
	report.Status = StatusSucceeded
	if runErr != nil {
		report.Status = StatusFailed
		report.Error = runErr.Error()
	}
	metrics.ObserveRun(report.Status)
	logger.Info("crawl run finished",
		zap.String("status", report.Status),
		zap.Duration("duration", report.Duration()),
		zap.Int("content_pages", report.ContentPages),
		zap.Int("directory_pages", report.DirectoryPages),
		zap.Int("fetched", report.Fetched),
		zap.Int("extracted", report.Extracted),
		zap.Int("written", report.Written))

	d.finish(ctx, logger, report)
	return report, runErr
}

func (d *Driver) fail(report Report, err error) (Report, error) {
	report.FinishedAt = d.deps.Clock.Now()
	report.Status = StatusFailed
	report.Error = err.Error()
	metrics.ObserveRun(report.Status)
	d.logger.Error("crawl run could not start", zap.Error(err))
	return report, err
}

func (d *Driver) run(ctx context.Context, logger *zap.Logger, report *Report) error {
	content, directories, err := d.discover(ctx, logger, report.Root)
	report.ContentPages = len(content)
	report.DirectoryPages = len(directories)
	if err != nil {
		return err
	}

	bodies := d.fetch(ctx, content)
	report.Fetched = len(bodies)

	records, failed := d.extract(ctx, logger, bodies)
	report.Extracted = len(records)
	report.ExtractFailed = failed

	written, err := d.persist(ctx, records)
	report.Written = written
	return err
}

// discover drains the sighting stream into the content and directory sets.
func (d *Driver) discover(ctx context.Context, logger *zap.Logger, root string) (map[string]*url.URL, map[string]*url.URL, error) {
	ctx, span := d.tracer.Start(ctx, "crawl.discover")

	sightings := make(chan Sighting, d.cfg.SightingBuffer)
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.deps.Discoverer.Discover(ctx, root, sightings)
	}()

	content := make(map[string]*url.URL)
	directories := make(map[string]*url.URL)
	for s := range sightings {
		if s.URL == nil {
			continue
		}
		kind, err := d.deps.Classifier.ClassifyChecked(s.Segments)
		if err != nil {
			logger.Error("classified url with empty path", zap.String("url", s.URL.String()), zap.Error(err))
		}
		set := directories
		if kind == classify.KindContent {
			set = content
		}
		key := s.URL.String()
		if _, seen := set[key]; seen {
			continue
		}
		set[key] = s.URL
		metrics.ObservePage(kind.String())
	}

	err := <-errCh
	if err != nil {
		err = fmt.Errorf("discover %s: %w", root, err)
	}
	span.SetAttributes(
		attribute.Int("crawl.content_pages", len(content)),
		attribute.Int("crawl.directory_pages", len(directories)),
	)
	telemetry.EndSpan(span, err)
	logger.Info("discovery complete",
		zap.Int("content_pages", len(content)),
		zap.Int("directory_pages", len(directories)))
	return content, directories, err
}

func (d *Driver) fetch(ctx context.Context, content map[string]*url.URL) map[string][]byte {
	ctx, span := d.tracer.Start(ctx, "crawl.fetch")
	defer span.End()

	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	urls := make([]*url.URL, 0, len(keys))
	for _, k := range keys {
		urls = append(urls, content[k])
	}

	bodies := d.deps.Coordinator.FetchAll(ctx, urls)
	span.SetAttributes(attribute.Int("crawl.fetched", len(bodies)))
	return bodies
}

func (d *Driver) extract(ctx context.Context, logger *zap.Logger, bodies map[string][]byte) (map[string]article.Record, int) {
	_, span := d.tracer.Start(ctx, "crawl.extract")
	defer span.End()

	ids := make([]string, 0, len(bodies))
	for id := range bodies {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	records := make(map[string]article.Record, len(bodies))
	failed := 0
	for _, id := range ids {
		rec, err := d.deps.Extractor.Extract(string(bodies[id]))
		if err != nil {
			failed++
			metrics.ObserveExtract("error")
			logger.Warn("extract failed", zap.String("id", id), zap.Error(err))
			continue
		}
		metrics.ObserveExtract("ok")
		records[id] = rec
	}
	span.SetAttributes(attribute.Int("crawl.extracted", len(records)), attribute.Int("crawl.extract_failed", failed))
	return records, failed
}

func (d *Driver) persist(ctx context.Context, records map[string]article.Record) (int, error) {
	ctx, span := d.tracer.Start(ctx, "crawl.persist")
	n, err := d.deps.Persister.Persist(ctx, records)
	if err != nil {
		err = fmt.Errorf("persist records: %w", err)
	}
	span.SetAttributes(attribute.Int("crawl.written", n))
	telemetry.EndSpan(span, err)
	return n, err
}

// finish records the run in the ledger and announces it. Both are best effort and survive the run
// deadline having passed.
func (d *Driver) finish(ctx context.Context, logger *zap.Logger, report Report) {
	if d.deps.Ledger == nil && d.deps.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if d.deps.Ledger != nil {
		if err := d.deps.Ledger.RecordRun(ctx, report); err != nil {
			logger.Warn("record run in ledger failed", zap.Error(err))
		}
	}
	if d.deps.Publisher != nil && d.cfg.NotifyTopic != "" {
		id, err := d.deps.Publisher.Publish(ctx, d.cfg.NotifyTopic, report)
		if err != nil {
			logger.Warn("publish run notification failed", zap.String("topic", d.cfg.NotifyTopic), zap.Error(err))
			return
		}
		logger.Debug("published run notification", zap.String("message_id", id))
	}
}
