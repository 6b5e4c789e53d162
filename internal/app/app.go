// Package app opens the long-lived services shared by the swarm subcommands.
package app

import (
	"context"
	"errors"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/FridgeSeal/swarm/internal/archive"
	"github.com/FridgeSeal/swarm/internal/archive/gcs"
	"github.com/FridgeSeal/swarm/internal/archive/local"
	archivemem "github.com/FridgeSeal/swarm/internal/archive/memory"
	"github.com/FridgeSeal/swarm/internal/config"
	"github.com/FridgeSeal/swarm/internal/crawler"
	"github.com/FridgeSeal/swarm/internal/ledger/postgres"
	"github.com/FridgeSeal/swarm/internal/logging"
	"github.com/FridgeSeal/swarm/internal/metrics"
	"github.com/FridgeSeal/swarm/internal/publisher/pubsub"
	"github.com/FridgeSeal/swarm/internal/store"
	"github.com/FridgeSeal/swarm/internal/store/memory"
	"github.com/FridgeSeal/swarm/internal/store/redis"
	"github.com/FridgeSeal/swarm/internal/store/sqlite"
	"github.com/FridgeSeal/swarm/internal/telemetry"
)

// Version is stamped into trace resources.
var Version = "dev"

// ErrNotInitialized is returned by commands that run before the App was built.
var ErrNotInitialized = errors.New("application services not initialized")

// App holds the services built from one Config. Optional services are nil when disabled.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     store.Store
	Archive   archive.Store
	Ledger    crawler.Ledger
	Publisher crawler.Publisher
	Tracer    *sdktrace.TracerProvider

	closers []func(context.Context) error
}

// Opener builds the optional backends. Tests swap individual fields.
type Opener struct {
	Store     func(context.Context, config.StoreConfig) (store.Store, error)
	Archive   func(context.Context, config.ArchiveConfig) (archive.Store, func() error, error)
	Ledger    func(context.Context, config.LedgerConfig) (crawler.Ledger, func(), error)
	Publisher func(context.Context, config.NotifyConfig) (crawler.Publisher, func() error, error)
}

// DefaultOpener connects to the real backends.
func DefaultOpener() Opener {
	return Opener{
		Store:     OpenStore,
		Archive:   OpenArchive,
		Ledger:    openLedger,
		Publisher: openPublisher,
	}
}

// New opens every service cfg enables. On failure the services opened so far are closed.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	return NewWith(ctx, cfg, DefaultOpener())
}

// NewWith is New with explicit backend constructors.
func NewWith(ctx context.Context, cfg config.Config, open Opener) (_ *App, err error) {
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	metrics.Init()

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.Tracer, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, a.Tracer.Shutdown)

	if a.Store, err = open.Store(ctx, cfg.Store); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.Store.Close() })
	a.logStore(ctx)

	if cfg.Archive.Enabled() {
		var closeArchive func() error
		if a.Archive, closeArchive, err = open.Archive(ctx, cfg.Archive); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ignoreCtx(closeArchive))
		logger.Info("page archive enabled", zap.String("backend", cfg.Archive.Backend))
	}

	if cfg.Ledger.DSN != "" {
		var closeLedger func()
		if a.Ledger, closeLedger, err = open.Ledger(ctx, cfg.Ledger); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { closeLedger(); return nil })
		logger.Info("run ledger enabled", zap.String("table", cfg.Ledger.Table))
	}

	if cfg.Notify.Enabled() {
		var closePublisher func() error
		if a.Publisher, closePublisher, err = open.Publisher(ctx, cfg.Notify); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ignoreCtx(closePublisher))
		logger.Info("run notices enabled", zap.String("topic", cfg.Notify.Topic))
	}

	return a, nil
}

func (a *App) logStore(ctx context.Context) {
	fields := []zap.Field{zap.String("backend", a.Config.Store.Backend), zap.Bool("recovered", a.Store.WasRecovered())}
	if n, err := a.Store.Len(ctx); err == nil {
		fields = append(fields, zap.Int("entries", n))
	}
	if sum, err := a.Store.Checksum(ctx); err == nil {
		fields = append(fields, zap.Uint64("checksum", sum))
	}
	a.Logger.Info("store opened", fields...)
}

// Close releases services in reverse order of opening and flushes the logger.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.Warn("close service failed", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
}

// OpenStore opens the key-value backend named by cfg.Backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.StoreSQLite:
		st, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Path, Compression: cfg.Compression})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case config.StoreRedis:
		st, err := redis.Open(ctx, redis.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return st, nil
	case config.StoreMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// OpenArchive opens the raw page archive named by cfg.Backend.
func OpenArchive(ctx context.Context, cfg config.ArchiveConfig) (archive.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.ArchiveMemory:
		return archivemem.New(), noop, nil
	case config.ArchiveLocal:
		st, err := local.New(cfg.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open local archive: %w", err)
		}
		return st, noop, nil
	case config.ArchiveGCS:
		st, err := gcs.Open(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs archive: %w", err)
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

func openLedger(ctx context.Context, cfg config.LedgerConfig) (crawler.Ledger, func(), error) {
	l, err := postgres.Open(ctx, postgres.Config{DSN: cfg.DSN, Table: cfg.Table})
	if err != nil {
		return nil, nil, fmt.Errorf("open run ledger: %w", err)
	}
	if err := l.EnsureSchema(ctx); err != nil {
		l.Close()
		return nil, nil, fmt.Errorf("prepare run ledger: %w", err)
	}
	return l, l.Close, nil
}

func openPublisher(ctx context.Context, cfg config.NotifyConfig) (crawler.Publisher, func() error, error) {
	p, err := pubsub.Open(ctx, cfg.ProjectID, cfg.Topic)
	if err != nil {
		return nil, nil, fmt.Errorf("open run notices: %w", err)
	}
	return p, p.Close, nil
}

func ignoreCtx(f func() error) func(context.Context) error {
	return func(context.Context) error { return f() }
}
