// Package kv implements the data service operations over the shared store. Transports in
// internal/rpc and internal/api call into it.
package kv

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/FridgeSeal/swarm/internal/article"
	"github.com/FridgeSeal/swarm/internal/metrics"
	"github.com/FridgeSeal/swarm/internal/store"
)

// HealthyMessage is returned by every successful health check.
const HealthyMessage = "H E A L T H Y  ᕕ( ᐛ )ᕗ"

var (
	// ErrNotFound is returned when a key has no value.
	ErrNotFound = fmt.Errorf("data not found: %w", store.ErrNotFound)
	// ErrNotText is returned when a stored value is not valid UTF-8.
	ErrNotText = errors.New("stored value is not valid utf-8 text")
)

// Health is the health check result.
type Health struct {
	IsHealthy bool   `json:"is_healthy"`
	Message   string `json:"message"`
}

// WriteResult reports a write. Reply holds the replaced value, or the written data when the key was new.
type WriteResult struct {
	WasSuccessful bool   `json:"was_successful"`
	Reply         string `json:"reply"`
}

// Service serves reads and writes against a store.Store.
type Service struct {
	store  store.Store
	logger *zap.Logger
}

// NewService wires the service to st.
func NewService(st store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Service{store: st, logger: logger.Named("kv")}
}

// Healthcheck reports liveness without touching the store.
func (s *Service) Healthcheck(context.Context) Health {
	return Health{IsHealthy: true, Message: HealthyMessage}
}

// WriteData stores data under key. Store failures are reported in the result, not as an error.
func (s *Service) WriteData(ctx context.Context, key []byte, data string) WriteResult {
	prev, existed, err := s.store.Insert(ctx, key, []byte(data))
	if err != nil {
		metrics.ObserveStoreOp("write", "error")
		s.logger.Error("write failed", zap.ByteString("key", key), zap.Error(err))
		return WriteResult{}
	}
	metrics.ObserveStoreOp("write", "ok")

	if !existed {
		return WriteResult{WasSuccessful: true, Reply: data}
	}
	if !utf8.Valid(prev) {
		s.logger.Warn("previous value is not text", zap.ByteString("key", key))
		return WriteResult{WasSuccessful: true}
	}
	return WriteResult{WasSuccessful: true, Reply: string(prev)}
}

// ReadData returns the text stored under key.
func (s *Service) ReadData(ctx context.Context, key []byte) (string, error) {
	value, err := s.read(ctx, "read", key)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(value) {
		return "", ErrNotText
	}
	return string(value), nil
}

// ReadArticle decodes the article record stored under id.
func (s *Service) ReadArticle(ctx context.Context, id string) (article.Record, error) {
	value, err := s.read(ctx, "read_article", []byte(id))
	if err != nil {
		return article.Record{}, err
	}
	rec, err := article.Decode(value)
	if err != nil {
		return article.Record{}, fmt.Errorf("decode article %s: %w", id, err)
	}
	return rec, nil
}

func (s *Service) read(ctx context.Context, op string, key []byte) ([]byte, error) {
	value, err := s.store.Get(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		metrics.ObserveStoreOp(op, "not_found")
		return nil, ErrNotFound
	case err != nil:
		metrics.ObserveStoreOp(op, "error")
		s.logger.Error("read failed", zap.ByteString("key", key), zap.Error(err))
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	metrics.ObserveStoreOp(op, "ok")
	return value, nil
}
