// Package extract turns a raw article page into an article.Record.
package extract

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FridgeSeal/swarm/internal/article"
)

// TimestampLayout is the only accepted article timestamp format, e.g. 2023-05-01T10:00:00+0000.
const TimestampLayout = "2006-01-02T15:04:05-0700"

// ErrMissingField marks a page that lacks an element the record requires.
var ErrMissingField = errors.New("required field missing")

// MissingFieldError names the field whose element or attribute was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField, e.Field)
}

// Unwrap lets errors.Is match ErrMissingField.
func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

var (
	metaTitle       = AttrMatch{Key: "name", Value: "title"}
	metaDescription = AttrMatch{Key: "name", Value: "description"}
	metaPublished   = AttrMatch{Key: "property", Value: "article:published_time"}
	metaModified    = AttrMatch{Key: "property", Value: "article:modified_time"}
	metaTag         = AttrMatch{Key: "property", Value: "article:tag"}
)

// Extractor pulls article metadata and body text out of HTML documents.
type Extractor struct {
	normalizer *Normalizer
}

// New returns an Extractor using the given normalizer.
func New(normalizer *Normalizer) *Extractor {
	if normalizer == nil {
		normalizer = NewNormalizer()
	}
	return &Extractor{normalizer: normalizer}
}

// Extract parses raw HTML and builds a record from it.
func (e *Extractor) Extract(raw string) (article.Record, error) {
	doc, err := ParseHTML(raw)
	if err != nil {
		return article.Record{}, err
	}
	return e.ExtractDocument(doc)
}

// ExtractDocument builds a record from an already parsed document.
func (e *Extractor) ExtractDocument(doc Document) (article.Record, error) {
	rec := article.New()

	titleEl, ok := doc.Find("meta", metaTitle)
	if !ok {
		return article.Record{}, &MissingFieldError{Field: "title"}
	}
	rec.Title, _ = titleEl.Attr("content")

	tags, err := e.tags(doc)
	if err != nil {
		return article.Record{}, err
	}
	rec.Tags = tags

	rec.TimestampPublished = e.timestamp(doc, metaPublished)
	rec.TimestampUpdated = e.timestamp(doc, metaModified)
	rec.Byline = byline(doc)
	rec.Content = e.content(doc)
	return rec, nil
}

func (e *Extractor) tags(doc Document) ([]string, error) {
	elements := doc.FindAll("meta", metaTag)
	tags := make([]string, 0, len(elements))
	for _, el := range elements {
		v, ok := el.Attr("content")
		if !ok {
			return nil, &MissingFieldError{Field: "article:tag"}
		}
		tags = append(tags, v)
	}
	return tags, nil
}

// timestamp returns nil when the element, its content, or a parseable value is missing.
func (e *Extractor) timestamp(doc Document, match AttrMatch) *time.Time {
	el, ok := doc.Find("meta", match)
	if !ok {
		return nil
	}
	raw, ok := el.Attr("content")
	if !ok {
		return nil
	}
	ts, err := ParseTimestamp(e.normalizer.Normalize(raw))
	if err != nil {
		return nil
	}
	return &ts
}

// byline is the element text of the description meta, which is empty for a void element.
func byline(doc Document) *string {
	el, ok := doc.Find("meta", metaDescription)
	if !ok {
		return nil
	}
	text := el.Text()
	return &text
}

func (e *Extractor) content(doc Document) string {
	paragraphs := doc.FindAll("p", AttrMatch{})
	texts := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if t := p.Text(); t != "" {
			texts = append(texts, t)
		}
	}
	return e.normalizer.Normalize(strings.Join(texts, "\n"))
}

// ParseTimestamp parses s with TimestampLayout and pins the result to a fixed UTC offset.
// Input must match the layout exactly; fractional seconds are rejected.
func ParseTimestamp(s string) (time.Time, error) {
	if len(s) != len(TimestampLayout) {
		return time.Time{}, fmt.Errorf("parse timestamp %q: want layout %s", s, TimestampLayout)
	}
	ts, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	_, offset := ts.Zone()
	return ts.In(time.FixedZone("", offset)), nil
}
