// Package memory keeps store entries in process memory for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/FridgeSeal/swarm/internal/store"
)

// Store is a map-backed store.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(_ context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[string(key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte{}, v...), nil
}

// Insert stores a copy of value and returns the replaced value.
func (s *Store) Insert(_ context.Context, key, value []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.data[string(key)]
	s.data[string(key)] = append([]byte{}, value...)
	return prev, existed, nil
}

// ApplyBatch applies every op under a single lock.
func (s *Store) ApplyBatch(_ context.Context, b *store.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range b.Ops() {
		s.data[string(op.Key)] = append([]byte{}, op.Value...)
	}
	return nil
}

// Len returns the entry count.
func (s *Store) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// Checksum hashes entries in key order.
func (s *Store) Checksum(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sum := store.NewChecksum()
	for _, k := range keys {
		sum.Add([]byte(k), s.data[k])
	}
	return sum.Sum64(), nil
}

// WasRecovered is always false; nothing survives a restart.
func (s *Store) WasRecovered() bool { return false }

// Close is a no-op.
func (s *Store) Close() error { return nil }
