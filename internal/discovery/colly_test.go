package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FridgeSeal/swarm/internal/crawler"
)

const story = "/news/2024-05-01/harbour-bridge-closed/10344556"

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprintf(w, "<html><body>%s</body></html>", body)
		}
	}
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /news/private\n"))
	})
	mux.HandleFunc("/news", page(`
		<a href="/news/world">world</a>
		<a href="`+story+`">story</a>
		<a href="/sport/cricket">sport</a>
		<a href="https://elsewhere.example/news/x">external</a>
		<a href="/news/private">private</a>`))
	mux.HandleFunc("/news/world", page(`<a href="/news">back</a><a href="`+story+`">again</a>`))
	mux.HandleFunc(story, page(`<p>story</p>`))
	mux.HandleFunc("/news/private", page(`<p>private</p>`))
	mux.HandleFunc("/sport/cricket", page(`<p>cricket</p>`))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, d *Colly, ctx context.Context, root string) ([]string, error) {
	t.Helper()
	out := make(chan crawler.Sighting)
	errCh := make(chan error, 1)
	go func() { errCh <- d.Discover(ctx, root, out) }()

	var paths []string
	for s := range out {
		paths = append(paths, s.URL.Path)
	}
	sort.Strings(paths)
	return paths, <-errCh
}

func TestDiscoverStaysInsidePrefix(t *testing.T) {
	t.Parallel()
	srv := newSite(t)

	d := New(Config{PathPrefix: "/news", Parallelism: 2, RespectRobots: true}, nil)
	paths, err := collect(t, d, context.Background(), srv.URL+"/news")
	require.NoError(t, err)
	require.Equal(t, []string{"/news", "/news/2024-05-01/harbour-bridge-closed/10344556", "/news/world"}, paths)
}

func TestDiscoverIgnoringRobots(t *testing.T) {
	t.Parallel()
	srv := newSite(t)

	d := New(Config{PathPrefix: "/news"}, nil)
	paths, err := collect(t, d, context.Background(), srv.URL+"/news")
	require.NoError(t, err)
	require.Contains(t, paths, "/news/private")
}

func TestDiscoverSegments(t *testing.T) {
	t.Parallel()
	srv := newSite(t)

	d := New(Config{PathPrefix: "/news", MaxDepth: 1}, nil)
	out := make(chan crawler.Sighting, 16)
	require.NoError(t, d.Discover(context.Background(), srv.URL+"/news", out))

	var got []crawler.Sighting
	for s := range out {
		got = append(got, s)
	}
	require.Len(t, got, 1)
	require.Equal(t, []string{"news"}, got[0].Segments)
}

func TestDiscoverCanceled(t *testing.T) {
	t.Parallel()
	srv := newSite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(Config{PathPrefix: "/news"}, nil)
	done := make(chan struct{})
	var (
		paths []string
		err   error
	)
	go func() {
		defer close(done)
		paths, err = collect(t, d, ctx, srv.URL+"/news")
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("discovery did not stop after cancellation")
	}
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, paths)
}

func TestDiscoverRejectsHostlessRoot(t *testing.T) {
	t.Parallel()

	out := make(chan crawler.Sighting)
	err := New(Config{}, nil).Discover(context.Background(), "/news", out)
	require.Error(t, err)
	_, open := <-out
	require.False(t, open)
}
