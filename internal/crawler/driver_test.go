package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FridgeSeal/swarm/internal/classify"
	"github.com/FridgeSeal/swarm/internal/clock/system"
	"github.com/FridgeSeal/swarm/internal/extract"
	"github.com/FridgeSeal/swarm/internal/fetcher"
	"github.com/FridgeSeal/swarm/internal/metrics"
	"github.com/FridgeSeal/swarm/internal/persist"
	"github.com/FridgeSeal/swarm/internal/publisher/memory"
	"github.com/FridgeSeal/swarm/internal/store"
	memstore "github.com/FridgeSeal/swarm/internal/store/memory"
)

const (
	root       = "https://www.abc.net.au/news"
	storyOne   = "https://www.abc.net.au/news/2024-05-01/harbour-bridge-closed/10344556"
	storyTwo   = "https://www.abc.net.au/news/2024-05-02/storm-heads-north/10344557"
	storyThree = "https://www.abc.net.au/news/2024-05-03/no-title-here/10344558"
)

func articlePage(title, body string) string {
	return fmt.Sprintf(`<html><head><meta name="title" content=%q>
<meta property="article:tag" content="local"></head><body><p>%s</p></body></html>`, title, body)
}

type fakeDiscoverer struct {
	urls []string
	err  error
}

func (f *fakeDiscoverer) Discover(ctx context.Context, _ string, out chan<- Sighting) error {
	defer close(out)
	for _, raw := range f.urls {
		u, err := url.Parse(raw)
		if err != nil {
			return err
		}
		select {
		case out <- Sighting{URL: u, Segments: classify.Segments(u)}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

type fakeCoordinator struct {
	pages map[string]string
	runID string
}

func (f *fakeCoordinator) FetchAll(ctx context.Context, urls []*url.URL) map[string][]byte {
	f.runID = fetcher.RunID(ctx)
	out := make(map[string][]byte)
	for _, u := range urls {
		body, ok := f.pages[u.String()]
		if !ok {
			continue
		}
		id, err := classify.ArticleID(u)
		if err != nil {
			continue
		}
		out[id] = []byte(body)
	}
	return out
}

type fakeLedger struct {
	mu      sync.Mutex
	reports []Report
	err     error
}

func (f *fakeLedger) RecordRun(_ context.Context, report Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
	return f.err
}

type sequentialIDs struct{ n int }

func (s *sequentialIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

type rejectingStore struct {
	store.Store
}

func (rejectingStore) ApplyBatch(context.Context, *store.Batch) error {
	return errors.New("disk full")
}

type fixture struct {
	st        store.Store
	ledger    *fakeLedger
	publisher *memory.Publisher
	coord     *fakeCoordinator
	deps      Dependencies
	cfg       DriverConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	metrics.Init()

	st := memstore.New()
	f := &fixture{
		st:        st,
		ledger:    &fakeLedger{},
		publisher: memory.New(),
		coord: &fakeCoordinator{pages: map[string]string{
			storyOne:   articlePage("Harbour Bridge closed", "Traffic is banked up."),
			storyTwo:   articlePage("Storm heads north", "Wild weather."),
			storyThree: `<html><body><p>no title meta</p></body></html>`,
		}},
		cfg: DriverConfig{Domains: []string{root}, RunTimeout: time.Minute, NotifyTopic: "crawl-runs"},
	}
	f.deps = Dependencies{
		Discoverer: &fakeDiscoverer{urls: []string{
			root,
			"https://www.abc.net.au/news/world",
			storyOne,
			storyTwo,
			storyOne,
			storyThree,
			"https://www.abc.net.au/news/2024-05-01/slug/not-an-id",
		}},
		Classifier:  classify.New(),
		Coordinator: f.coord,
		Extractor:   extract.New(nil),
		Persister:   persist.New(st, zap.NewNop()),
		Ledger:      f.ledger,
		Publisher:   f.publisher,
		IDGen:       &sequentialIDs{},
		Clock:       system.Stepping(time.Date(2024, 5, 3, 6, 0, 0, 0, time.UTC), time.Second),
	}
	return f
}

func (f *fixture) driver(t *testing.T) *Driver {
	t.Helper()
	d, err := NewDriver(f.cfg, f.deps, zap.NewNop())
	require.NoError(t, err)
	return d
}

func TestRunPersistsExtractedArticles(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	report, err := f.driver(t).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, "run-1", report.RunID)
	require.Equal(t, root, report.Root)
	require.Equal(t, StatusSucceeded, report.Status)
	require.Equal(t, 3, report.ContentPages)
	require.Equal(t, 3, report.DirectoryPages)
	require.Equal(t, 3, report.Fetched)
	require.Equal(t, 2, report.Extracted)
	require.Equal(t, 1, report.ExtractFailed)
	require.Equal(t, 2, report.Written)
	require.Equal(t, time.Second, report.Duration())
	require.Equal(t, "run-1", f.coord.runID)

	n, err := f.st.Len(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	_, err = f.st.Get(context.Background(), []byte("10344556"))
	require.NoError(t, err)

	require.Len(t, f.ledger.reports, 1)
	require.Equal(t, report, f.ledger.reports[0])

	notices := f.publisher.Notices("crawl-runs")
	require.Len(t, notices, 1)
	var published Report
	require.NoError(t, json.Unmarshal(notices[0].Data, &published))
	require.Equal(t, "run-1", published.RunID)
	require.Equal(t, 2, published.Written)
}

func TestRunTwiceLeavesStoreSizeUnchanged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	d := f.driver(t)

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	sum, err := f.st.Checksum(context.Background())
	require.NoError(t, err)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-2", report.RunID)

	n, err := f.st.Len(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	again, err := f.st.Checksum(context.Background())
	require.NoError(t, err)
	require.Equal(t, sum, again)
}

func TestRunDiscoveryFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boom := errors.New("connection refused")
	f.deps.Discoverer = &fakeDiscoverer{urls: []string{storyOne}, err: boom}

	report, err := f.driver(t).Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, StatusFailed, report.Status)
	require.Contains(t, report.Error, "connection refused")
	require.Equal(t, 1, report.ContentPages)
	require.Zero(t, report.Written)

	n, err := f.st.Len(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, f.ledger.reports, 1)
}

func TestRunPersistFailureIsReturned(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.deps.Persister = persist.New(rejectingStore{Store: memstore.New()}, zap.NewNop())

	report, err := f.driver(t).Run(context.Background())
	require.ErrorIs(t, err, persist.ErrApply)
	require.Equal(t, StatusFailed, report.Status)
	require.Equal(t, 2, report.Extracted)
	require.Zero(t, report.Written)
	require.Equal(t, StatusFailed, f.ledger.reports[0].Status)
}

func TestRunBestEffortFinish(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.ledger.err = errors.New("ledger down")

	core, logs := observer.New(zapcore.WarnLevel)
	d, err := NewDriver(f.cfg, f.deps, zap.New(core))
	require.NoError(t, err)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, report.Status)
	require.Equal(t, 1, logs.FilterMessage("record run in ledger failed").Len())
	require.Len(t, f.publisher.Notices(""), 1)
}

func TestRunLogsEmptyPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.deps.Discoverer = &fakeDiscoverer{urls: []string{"https://www.abc.net.au"}}

	core, logs := observer.New(zapcore.ErrorLevel)
	d, err := NewDriver(f.cfg, f.deps, zap.New(core))
	require.NoError(t, err)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.DirectoryPages)
	require.Zero(t, report.Written)
	require.Equal(t, 1, logs.FilterMessage("classified url with empty path").Len())
}

func TestRunWithoutDomain(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.cfg.Domains = nil

	report, err := f.driver(t).Run(context.Background())
	require.ErrorIs(t, err, ErrNoDomain)
	require.Equal(t, StatusFailed, report.Status)
	require.Equal(t, "run-1", report.RunID)
}

func TestNewDriverRequiresCollaborators(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.deps.Extractor = nil

	_, err := NewDriver(f.cfg, f.deps, nil)
	require.ErrorIs(t, err, ErrMissingDependency)
}

func TestRunHonoursDeadline(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.cfg.RunTimeout = time.Nanosecond
	f.deps.Discoverer = &blockingDiscoverer{}

	report, err := f.driver(t).Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StatusFailed, report.Status)
}

type blockingDiscoverer struct{}

func (blockingDiscoverer) Discover(ctx context.Context, _ string, out chan<- Sighting) error {
	defer close(out)
	<-ctx.Done()
	return ctx.Err()
}
