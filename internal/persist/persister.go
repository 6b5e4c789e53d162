// Package persist writes a crawl run's article records to the store in one atomic batch.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/FridgeSeal/swarm/internal/article"
	"github.com/FridgeSeal/swarm/internal/metrics"
	"github.com/FridgeSeal/swarm/internal/store"
)

var (
	// ErrEncode wraps a record that could not be serialized. Nothing was written.
	ErrEncode = errors.New("encode record")
	// ErrApply wraps a batch the store rejected.
	ErrApply = errors.New("apply batch")
)

// Persister encodes records and applies them as a single batch.
type Persister struct {
	store  store.Store
	logger *zap.Logger
}

// New builds a Persister writing to st.
func New(st store.Store, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Persister{store: st, logger: logger.Named("persist")}
}

// Persist writes records keyed by article id and returns how many were written.
func (p *Persister) Persist(ctx context.Context, records map[string]article.Record) (int, error) {
	if len(records) == 0 {
		p.logger.Info("nothing to write")
		return 0, nil
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	batch := store.NewBatch(len(ids))
	for _, id := range ids {
		value, err := article.Encode(records[id])
		if err != nil {
			metrics.ObserveBatchWrite("encode_error", 0)
			return 0, fmt.Errorf("%w %s: %w", ErrEncode, id, err)
		}
		batch.Put([]byte(id), value)
	}

	if err := p.store.ApplyBatch(ctx, batch); err != nil {
		metrics.ObserveBatchWrite("error", 0)
		p.logger.Error("batch write failed", zap.Int("records", batch.Len()), zap.Error(err))
		return 0, fmt.Errorf("%w: %w", ErrApply, err)
	}

	metrics.ObserveBatchWrite("ok", batch.Len())
	p.logger.Info("batch written", zap.Int("records", batch.Len()))
	return batch.Len(), nil
}
