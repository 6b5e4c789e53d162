// Package archive keeps raw copies of fetched article pages. Keys are slash-separated relative paths
// such as "pages/<run id>/<article id>.html".
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalidKey is returned for empty, absolute or escaping keys.
var ErrInvalidKey = errors.New("invalid archive key")

// ErrNotFound is returned by readers when a key holds no object.
var ErrNotFound = errors.New("archived object not found")

// Store writes and reads archived pages. Every backend implements it.
type Store interface {
	PutObject(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// PageKey is the key a fetched page is archived under.
func PageKey(prefix, runID, articleID string) string {
	return path.Join(prefix, runID, articleID+".html")
}

// CleanKey normalises key and rejects anything that could leave the archive root.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes the archive", ErrInvalidKey, key)
	}
	return cleaned, nil
}
