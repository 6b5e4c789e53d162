// Package memory archives pages in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/FridgeSeal/swarm/internal/archive"
)

var _ archive.Store = (*Store)(nil)

// Store holds archived pages in a map.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// PutObject keeps a copy of data under key and returns a memory:// URI.
func (s *Store) PutObject(_ context.Context, key, _ string, data []byte) (string, error) {
	cleaned, err := archive.CleanKey(key)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[cleaned] = append([]byte(nil), data...)
	return "memory://" + cleaned, nil
}

// Get returns a copy of the object stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	cleaned, err := archive.CleanKey(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[cleaned]
	if !ok {
		return nil, fmt.Errorf("%w: %s", archive.ErrNotFound, cleaned)
	}
	return append([]byte(nil), data...), nil
}

// Keys lists stored keys in order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
