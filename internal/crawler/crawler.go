// Package crawler runs one ingestion pass over a news site: discover pages, classify them, fetch the
// articles, extract their metadata and persist the records in a single batch.
package crawler

import (
	"context"
	"net/url"
	"time"

	"github.com/FridgeSeal/swarm/internal/article"
	"github.com/FridgeSeal/swarm/internal/classify"
)

// Sighting is one URL reported by the discovery collaborator.
type Sighting struct {
	URL      *url.URL
	Segments []string
}

// Run outcomes recorded in Report.Status.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Report summarises a crawl run. It is filled as far as the run got.
type Report struct {
	RunID          string    `json:"run_id"`
	Root           string    `json:"root"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	ContentPages   int       `json:"content_pages"`
	DirectoryPages int       `json:"directory_pages"`
	Fetched        int       `json:"fetched"`
	Extracted      int       `json:"extracted"`
	ExtractFailed  int       `json:"extract_failed"`
	Written        int       `json:"written"`
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Discoverer walks a site from root and sends every URL it visits to out. It must close out when it
// returns.
type Discoverer interface {
	Discover(ctx context.Context, root string, out chan<- Sighting) error
}

// Classifier labels a URL by its path segments.
type Classifier interface {
	ClassifyChecked(segments []string) (classify.Kind, error)
}

// Coordinator fetches content pages and returns bodies keyed by article id.
type Coordinator interface {
	FetchAll(ctx context.Context, urls []*url.URL) map[string][]byte
}

// Extractor turns one page into an article record.
type Extractor interface {
	Extract(raw string) (article.Record, error)
}

// Persister writes a set of records atomically.
type Persister interface {
	Persist(ctx context.Context, records map[string]article.Record) (int, error)
}

// Ledger keeps a history of runs.
type Ledger interface {
	RecordRun(ctx context.Context, report Report) error
}

// Publisher announces finished runs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator produces run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
