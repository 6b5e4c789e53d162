// Package store defines the key-value store the crawler writes to and the data service serves from.
// Backends live in subpackages; this package must not import database drivers or concrete clients.
package store

import (
	"context"
	"errors"
)

// ErrNotFound signals that the requested key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is an ordered byte-key, byte-value store. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)
	// Insert sets key to value and reports the value it replaced, if any.
	Insert(ctx context.Context, key, value []byte) (prev []byte, existed bool, err error)
	// ApplyBatch writes every op in b atomically: all or none.
	ApplyBatch(ctx context.Context, b *Batch) error
	// Len counts the stored entries.
	Len(ctx context.Context) (int, error)
	// Checksum hashes every entry in key order. Two stores with equal contents have equal checksums
	// regardless of backend or compression settings.
	Checksum(ctx context.Context) (uint64, error)
	// WasRecovered reports whether the store was opened over previously persisted data.
	WasRecovered() bool
	Close() error
}

// Op is a single put inside a Batch.
type Op struct {
	Key   []byte
	Value []byte
}

// Batch accumulates puts to apply in one transaction.
type Batch struct {
	ops []Op
}

// NewBatch returns an empty batch with room for n ops.
func NewBatch(n int) *Batch {
	return &Batch{ops: make([]Op, 0, n)}
}

// Put queues key=value. Both slices are copied.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, Op{
		Key:   append([]byte(nil), key...),
		Value: append([]byte(nil), value...),
	})
}

// Ops returns the queued ops in insertion order.
func (b *Batch) Ops() []Op {
	if b == nil {
		return nil
	}
	return b.ops
}

// Len is the number of queued ops.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}
