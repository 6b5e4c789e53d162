// Package redis implements store.Store on a Redis server so a crawler and a data service on
// different hosts can share one store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FridgeSeal/swarm/internal/store"
)

// DefaultPrefix namespaces store keys inside a shared Redis database.
const DefaultPrefix = "swarm:kv:"

const (
	connectionTimeout = 5 * time.Second
	scanCount         = 512
)

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// Config holds Redis connection configuration.
type Config struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// Store keeps each entry as a plain Redis string under Prefix+key.
type Store struct {
	client    *redis.Client
	prefix    string
	recovered bool
	owned     bool
}

var _ store.Store = (*Store)(nil)

// Open dials Redis, verifies the connection and wraps it.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	s, err := New(ctx, client, cfg.Prefix)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New wraps an existing client. The caller keeps ownership of client.
func New(ctx context.Context, client *redis.Client, prefix string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Store{client: client, prefix: prefix}

	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, s.pattern(), scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan existing keys: %w", err)
		}
		if len(keys) > 0 {
			s.recovered = true
			break
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return s, nil
}

func (s *Store) key(k []byte) string {
	return s.prefix + string(k)
}

func (s *Store) pattern() string {
	return s.prefix + "*"
}

// Get returns the value for key.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

// Insert reads and overwrites key inside one MULTI/EXEC.
func (s *Store) Insert(ctx context.Context, key, value []byte) ([]byte, bool, error) {
	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, s.key(key))
		pipe.Set(ctx, s.key(key), value, 0)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("redis insert: %w", err)
	}

	prev, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis insert: %w", err)
	}
	return prev, true, nil
}

// ApplyBatch sets every op inside one MULTI/EXEC.
func (s *Store) ApplyBatch(ctx context.Context, b *store.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range b.Ops() {
			pipe.Set(ctx, s.key(op.Key), op.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis batch: %w", err)
	}
	return nil
}

func (s *Store) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.pattern(), scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// Len counts keys under the prefix.
func (s *Store) Len(ctx context.Context) (int, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return 0, err
	}
	// SCAN may return a key more than once.
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	return len(seen), nil
}

// Checksum hashes entries in key order, reading values in MGET chunks.
func (s *Store) Checksum(ctx context.Context) (uint64, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return 0, err
	}
	sort.Strings(keys)
	keys = compact(keys)

	sum := store.NewChecksum()
	for start := 0; start < len(keys); start += scanCount {
		end := min(start+scanCount, len(keys))
		values, err := s.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return 0, fmt.Errorf("redis mget: %w", err)
		}
		for i, v := range values {
			str, ok := v.(string)
			if !ok {
				// Deleted between SCAN and MGET.
				continue
			}
			sum.Add([]byte(keys[start+i][len(s.prefix):]), []byte(str))
		}
	}
	return sum.Sum64(), nil
}

func compact(sorted []string) []string {
	out := make([]string, 0, len(sorted))
	for _, k := range sorted {
		if len(out) > 0 && out[len(out)-1] == k {
			continue
		}
		out = append(out, k)
	}
	return out
}

// WasRecovered reports whether keys under the prefix existed when the store was opened.
func (s *Store) WasRecovered() bool { return s.recovered }

// Close closes the client when Open created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
