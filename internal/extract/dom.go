package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// AttrMatch selects elements whose attribute Key equals Value. A zero AttrMatch matches every
// element of the requested tag.
type AttrMatch struct {
	Key   string
	Value string
}

// Element is a handle on one node returned by a Document query.
type Element interface {
	Attr(name string) (string, bool)
	Text() string
}

// Document is the DOM query capability the extractor needs.
type Document interface {
	Find(tag string, match AttrMatch) (Element, bool)
	FindAll(tag string, match AttrMatch) []Element
}

// ParseHTML builds a goquery-backed Document from raw HTML.
func ParseHTML(raw string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &queryDocument{doc: doc}, nil
}

type queryDocument struct {
	doc *goquery.Document
}

func (d *queryDocument) selection(tag string, match AttrMatch) *goquery.Selection {
	sel := d.doc.Find(tag)
	if match.Key == "" {
		return sel
	}
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, ok := s.Attr(match.Key)
		return ok && v == match.Value
	})
}

func (d *queryDocument) Find(tag string, match AttrMatch) (Element, bool) {
	sel := d.selection(tag, match).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return queryElement{sel: sel}, true
}

func (d *queryDocument) FindAll(tag string, match AttrMatch) []Element {
	sel := d.selection(tag, match)
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, queryElement{sel: s})
	})
	return out
}

type queryElement struct {
	sel *goquery.Selection
}

func (e queryElement) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e queryElement) Text() string {
	return e.sel.Text()
}
