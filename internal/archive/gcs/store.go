// Package gcs archives pages in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/FridgeSeal/swarm/internal/archive"
)

var _ archive.Store = (*Store)(nil)

// Store uploads objects to one bucket.
type Store struct {
	client *storage.Client
	bucket string
	owned  bool
}

// Open creates a storage client and binds it to bucket. Close releases the client.
func Open(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("open gcs archive: bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket, owned: true}, nil
}

// New wraps a client the caller owns.
func New(client *storage.Client, bucket string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("open gcs archive: storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("open gcs archive: bucket is required")
	}
	return &Store{client: client, bucket: bucket}, nil
}

// PutObject uploads data and returns a gs:// URI.
func (s *Store) PutObject(ctx context.Context, key, contentType string, data []byte) (string, error) {
	cleaned, err := archive.CleanKey(key)
	if err != nil {
		return "", err
	}
	w := s.client.Bucket(s.bucket).Object(cleaned).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", cleaned, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finish upload %s: %w", cleaned, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, cleaned), nil
}

// Get downloads the object stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cleaned, err := archive.CleanKey(key)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(cleaned).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", archive.ErrNotFound, cleaned)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cleaned, err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cleaned, err)
	}
	return data, nil
}

// Close releases the client when Open created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
