// Package metrics exposes Prometheus collectors for the crawler and the data service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal                    *prometheus.CounterVec
	crawlerFetchTotal                    *prometheus.CounterVec
	crawlerFetchBytesTotal               prometheus.Counter
	crawlerArticleIDCollisionsTotal      prometheus.Counter
	crawlerExtractTotal                  *prometheus.CounterVec
	crawlerBatchWritesTotal              *prometheus.CounterVec
	crawlerBatchRecordsTotal             prometheus.Counter
	crawlerRunsTotal                     *prometheus.CounterVec
	crawlerProbeTLSHandshakeTimeoutTotal prometheus.Counter
	crawlerRateLimitDelaysSeconds        *prometheus.HistogramVec
	httpRequestsTotal                    *prometheus.CounterVec
	httpRequestDurationSeconds           *prometheus.HistogramVec
	rpcRequestsTotal                     *prometheus.CounterVec
	rpcRequestDurationSeconds            *prometheus.HistogramVec
	storeOperationsTotal                 *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of discovered pages, labeled by classification.",
			},
			[]string{"kind"},
		)

		crawlerFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_total",
				Help: "Total number of content page fetches, labeled by outcome.",
			},
			[]string{"status"},
		)

		crawlerFetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_fetch_bytes_total",
				Help: "Total number of body bytes fetched from content pages.",
			},
		)

		crawlerArticleIDCollisionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_article_id_collisions_total",
				Help: "Content URLs rejected because another URL already claimed their article id.",
			},
		)

		crawlerExtractTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_extract_total",
				Help: "Total number of extraction attempts, labeled by outcome.",
			},
			[]string{"status"},
		)

		crawlerBatchWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_batch_writes_total",
				Help: "Total number of batch writes to the store, labeled by outcome.",
			},
			[]string{"status"},
		)

		crawlerBatchRecordsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_batch_records_total",
				Help: "Total number of article records written in successful batches.",
			},
		)

		crawlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Total number of crawl runs, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerProbeTLSHandshakeTimeoutTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_probe_tls_handshake_timeout_total",
				Help: "Total TLS handshake timeouts encountered while probing robots.txt.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		rpcRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_requests_total",
				Help: "Total number of gRPC requests, labeled by method and status code.",
			},
			[]string{"method", "code"},
		)

		rpcRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpc_request_duration_seconds",
				Help:    "Histogram of gRPC request latencies, labeled by method.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method"},
		)

		storeOperationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_operations_total",
				Help: "Total number of data service store operations, labeled by operation and outcome.",
			},
			[]string{"op", "status"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one classified page.
func ObservePage(kind string) {
	crawlerPagesTotal.WithLabelValues(kind).Inc()
}

// ObserveFetch counts a fetch outcome (ok, error, timeout) and the bytes it returned.
func ObserveFetch(status string, bytesFetched int) {
	crawlerFetchTotal.WithLabelValues(status).Inc()
	if bytesFetched > 0 {
		crawlerFetchBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveArticleIDCollision counts a content URL dropped for a duplicate article id.
func ObserveArticleIDCollision() {
	crawlerArticleIDCollisionsTotal.Inc()
}

// ObserveExtract counts an extraction outcome.
func ObserveExtract(status string) {
	crawlerExtractTotal.WithLabelValues(status).Inc()
}

// ObserveBatchWrite counts a batch write and, on success, its records.
func ObserveBatchWrite(status string, records int) {
	crawlerBatchWritesTotal.WithLabelValues(status).Inc()
	if status == "ok" && records > 0 {
		crawlerBatchRecordsTotal.Add(float64(records))
	}
}

// ObserveRun counts a finished crawl run.
func ObserveRun(status string) {
	crawlerRunsTotal.WithLabelValues(status).Inc()
}

// ObserveProbeTLSHandshakeTimeout increments the probe-specific handshake timeout counter.
func ObserveProbeTLSHandshakeTimeout() {
	crawlerProbeTLSHandshakeTimeoutTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRPC records a finished gRPC call.
func ObserveRPC(method, code string, duration time.Duration) {
	rpcRequestsTotal.WithLabelValues(method, code).Inc()
	rpcRequestDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveStoreOp counts a data service store operation.
func ObserveStoreOp(op, status string) {
	storeOperationsTotal.WithLabelValues(op, status).Inc()
}
