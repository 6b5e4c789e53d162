// Package article defines the extracted article record and its binary store encoding.
package article

import "time"

// SchemaVersion is written into every encoded record and checked on decode.
const SchemaVersion uint32 = 1

// Record is the structured result of extracting one content page.
type Record struct {
	Title string `json:"title"`
	// Authors is reserved; extraction never populates it.
	Authors            []string   `json:"authors,omitempty"`
	TimestampPublished *time.Time `json:"timestamp_published,omitempty"`
	TimestampUpdated   *time.Time `json:"timestamp_updated,omitempty"`
	Byline             *string    `json:"byline,omitempty"`
	Content            string     `json:"content"`
	// Tags keeps document order and duplicates. nil and empty survive encoding as distinct values.
	Tags          []string `json:"tags"`
	SchemaVersion uint32   `json:"schema_version"`
}

// New returns an empty record stamped with the current schema version.
func New() Record {
	return Record{
		Tags:          []string{},
		SchemaVersion: SchemaVersion,
	}
}
