package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FridgeSeal/swarm/internal/archive"
	archivemem "github.com/FridgeSeal/swarm/internal/archive/memory"
	"github.com/FridgeSeal/swarm/internal/config"
	"github.com/FridgeSeal/swarm/internal/crawler"
	"github.com/FridgeSeal/swarm/internal/publisher/memory"
	"github.com/FridgeSeal/swarm/internal/store"
	"github.com/FridgeSeal/swarm/internal/store/sqlite"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Backend = config.StoreMemory
	return cfg
}

type nopLedger struct{}

func (nopLedger) RecordRun(context.Context, crawler.Report) error { return nil }

func TestNewMemoryServices(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), baseConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	require.NotNil(t, a.Logger)
	require.NotNil(t, a.Store)
	require.NotNil(t, a.Tracer)
	require.Nil(t, a.Archive)
	require.Nil(t, a.Ledger)
	require.Nil(t, a.Publisher)
}

func TestNewWithOptionalServices(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Archive.Backend = config.ArchiveMemory
	cfg.Ledger.DSN = "postgres://swarm@localhost/swarm"
	cfg.Notify = config.NotifyConfig{ProjectID: "swarm-test", Topic: "crawl-runs"}

	var closed []string
	open := DefaultOpener()
	open.Ledger = func(context.Context, config.LedgerConfig) (crawler.Ledger, func(), error) {
		return nopLedger{}, func() { closed = append(closed, "ledger") }, nil
	}
	open.Publisher = func(context.Context, config.NotifyConfig) (crawler.Publisher, func() error, error) {
		return memory.New(), func() error { closed = append(closed, "publisher"); return nil }, nil
	}

	a, err := NewWith(context.Background(), cfg, open)
	require.NoError(t, err)
	require.IsType(t, &archivemem.Store{}, a.Archive)
	require.NotNil(t, a.Ledger)
	require.NotNil(t, a.Publisher)

	a.Close(context.Background())
	require.Equal(t, []string{"publisher", "ledger"}, closed)
}

func TestNewClosesOpenedServicesOnFailure(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Archive.Backend = config.ArchiveMemory
	cfg.Ledger.DSN = "postgres://swarm@localhost/swarm"

	archiveClosed := false
	boom := errors.New("connection refused")
	open := DefaultOpener()
	open.Archive = func(context.Context, config.ArchiveConfig) (archive.Store, func() error, error) {
		return archivemem.New(), func() error { archiveClosed = true; return nil }, nil
	}
	open.Ledger = func(context.Context, config.LedgerConfig) (crawler.Ledger, func(), error) {
		return nil, nil, boom
	}

	_, err := NewWith(context.Background(), cfg, open)
	require.ErrorIs(t, err, boom)
	require.True(t, archiveClosed)
}

func TestOpenStoreBackends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, err := OpenStore(ctx, config.StoreConfig{Backend: config.StoreSQLite, Path: filepath.Join(t.TempDir(), "kv.db")})
	require.NoError(t, err)
	require.IsType(t, &sqlite.Store{}, st)
	require.NoError(t, st.Close())

	st, err = OpenStore(ctx, config.StoreConfig{Backend: config.StoreMemory})
	require.NoError(t, err)
	_, err = st.Get(ctx, []byte("missing"))
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = OpenStore(ctx, config.StoreConfig{Backend: "sled"})
	require.ErrorContains(t, err, "unknown store backend")
}

func TestOpenArchiveBackends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	blobs, closeFn, err := OpenArchive(ctx, config.ArchiveConfig{Backend: config.ArchiveLocal, Dir: t.TempDir()})
	require.NoError(t, err)
	uri, err := blobs.PutObject(ctx, "pages/run/1.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	require.Contains(t, uri, "file://")
	require.NoError(t, closeFn())

	_, _, err = OpenArchive(ctx, config.ArchiveConfig{Backend: "s3"})
	require.ErrorContains(t, err, "unknown archive backend")
}
