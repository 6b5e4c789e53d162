package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(crawlerFetchTotal.WithLabelValues("ok"))
	bytesBefore := testutil.ToFloat64(crawlerFetchBytesTotal)
	ObserveFetch("ok", 128)
	ObserveFetch("ok", 0)
	require.InDelta(t, before+2, testutil.ToFloat64(crawlerFetchTotal.WithLabelValues("ok")), 0)
	require.InDelta(t, bytesBefore+128, testutil.ToFloat64(crawlerFetchBytesTotal), 0)

	recordsBefore := testutil.ToFloat64(crawlerBatchRecordsTotal)
	ObserveBatchWrite("error", 5)
	ObserveBatchWrite("ok", 2)
	require.InDelta(t, recordsBefore+2, testutil.ToFloat64(crawlerBatchRecordsTotal), 0)

	collisions := testutil.ToFloat64(crawlerArticleIDCollisionsTotal)
	ObserveArticleIDCollision()
	require.InDelta(t, collisions+1, testutil.ToFloat64(crawlerArticleIDCollisionsTotal), 0)

	ObserveRPC("/swarm.SwarmDataService/ReadData", "OK", time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(rpcRequestDurationSeconds))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://www.abc.net.au", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
