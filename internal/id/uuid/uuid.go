// Package uuid generates crawl run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator hands out time-ordered UUIDv7 strings, so run ids sort by start time.
type Generator struct{}

// NewGenerator returns a Generator.
func NewGenerator() Generator {
	return Generator{}
}

// NewID returns a new UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Parse checks that s is a UUID and returns its canonical form.
func Parse(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse run id %q: %w", s, err)
	}
	return id.String(), nil
}
