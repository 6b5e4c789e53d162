// Package local archives pages under a directory on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/FridgeSeal/swarm/internal/archive"
)

var _ archive.Store = (*Store)(nil)

// Store writes each object to <dir>/<key>.
type Store struct {
	dir string
}

// New prepares dir, creating it when missing, and checks that it is writable.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("open local archive: directory is required")
	}
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat archive directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("open local archive: %s is not a directory", dir)
	}

	check, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("archive directory is not writable: %w", err)
	}
	_ = check.Close()
	if err := os.Remove(check.Name()); err != nil {
		return nil, fmt.Errorf("remove write check file: %w", err)
	}
	return &Store{dir: filepath.Clean(dir)}, nil
}

// PutObject writes data atomically and returns a file:// URI.
func (s *Store) PutObject(_ context.Context, key, _ string, data []byte) (string, error) {
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create archive subdirectory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".part-*")
	if err != nil {
		return "", fmt.Errorf("create archive temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write archive object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close archive object: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("publish archive object: %w", err)
	}
	return "file://" + full, nil
}

// Get reads the object stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full) // #nosec G304 -- key is cleaned and confined to the archive dir.
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", archive.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read archive object: %w", err)
	}
	return data, nil
}

func (s *Store) resolve(key string) (string, error) {
	cleaned, err := archive.CleanKey(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.dir, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(full, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the archive", archive.ErrInvalidKey, key)
	}
	return full, nil
}
