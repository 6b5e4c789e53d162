// Package fetcher downloads content pages concurrently and hands back their bodies keyed by article id.
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RobotsStatus records how robots.txt was resolved for a fetch.
type RobotsStatus string

// Robots outcomes.
const (
	RobotsStatusUnknown       RobotsStatus = ""
	RobotsStatusIndeterminate RobotsStatus = "indeterminate"
)

// Page is a fetched document.
type Page struct {
	URL          string
	FinalURL     string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	RobotsStatus RobotsStatus
	RobotsReason string
}

// StatusError is returned for a response outside 2xx.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// PageFetcher performs a single GET.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}
