// Package classify decides whether a discovered URL is an article page or a navigation page.
package classify

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// Kind is the outcome of classifying a URL.
type Kind int

// Classification outcomes.
const (
	KindDirectory Kind = iota
	KindContent
)

// String returns the metric/log label for the kind.
func (k Kind) String() string {
	if k == KindContent {
		return "content"
	}
	return "directory"
}

var (
	// ErrEmptyPath flags a URL with no path segments at all.
	ErrEmptyPath = errors.New("url has no path segments")
	// ErrMalformedURL is returned when no article id can be derived from a URL.
	ErrMalformedURL = errors.New("url has no usable last path segment")
)

// contentSection is the first path segment shared by every article URL.
const contentSection = "news"

// Classifier holds the compiled patterns used to recognise article URLs.
// Build one with New and share it; it is safe for concurrent use.
type Classifier struct {
	date *regexp.Regexp
	id   *regexp.Regexp
}

// New compiles the classifier patterns.
func New() *Classifier {
	return &Classifier{
		date: regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		id:   regexp.MustCompile(`^\d{8,}$`),
	}
}

// Classify returns KindContent for paths shaped like /news/YYYY-MM-DD/<slug>/<numeric id>.
func (c *Classifier) Classify(segments []string) Kind {
	kind, _ := c.ClassifyChecked(segments)
	return kind
}

// ClassifyChecked behaves like Classify but also reports ErrEmptyPath for zero segments.
// The kind is KindDirectory in that case.
func (c *Classifier) ClassifyChecked(segments []string) (Kind, error) {
	switch len(segments) {
	case 0:
		return KindDirectory, ErrEmptyPath
	case 4:
		section, date, id := segments[0], segments[1], segments[3]
		if section == contentSection && c.date.MatchString(date) && c.id.MatchString(id) {
			return KindContent, nil
		}
		return KindDirectory, nil
	default:
		return KindDirectory, nil
	}
}

// Segments splits the escaped path of u on "/". The leading slash is dropped, so "/" yields a
// single empty segment and an empty path yields none.
func Segments(u *url.URL) []string {
	if u == nil {
		return nil
	}
	p := u.EscapedPath()
	if p == "" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// ArticleID returns the last path segment of u.
func ArticleID(u *url.URL) (string, error) {
	segments := Segments(u)
	if len(segments) == 0 {
		return "", ErrMalformedURL
	}
	id := segments[len(segments)-1]
	if id == "" {
		return "", ErrMalformedURL
	}
	return id, nil
}
