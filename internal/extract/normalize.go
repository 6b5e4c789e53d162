package extract

import "regexp"

// Normalizer strips whitespace runs, line breaks, tabs and backslashes from extracted text.
// Matches are deleted, not collapsed to a space.
type Normalizer struct {
	invalid *regexp.Regexp
}

// NewNormalizer compiles the normalization pattern.
func NewNormalizer() *Normalizer {
	return &Normalizer{invalid: regexp.MustCompile(`\s{2,}|\n|\r|\t|\\`)}
}

// Normalize removes every match of the invalid-text pattern from s.
func (n *Normalizer) Normalize(s string) string {
	return n.invalid.ReplaceAllLiteralString(s, "")
}
