// Package sqlite implements the durable store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/FridgeSeal/swarm/internal/store"
)

// Value codecs recorded per row, so compression can be toggled over an existing file.
const (
	codecRaw  = 0
	codecZstd = 1
)

const pragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// Config captures the parameters for the SQLite store.
type Config struct {
	// Path is the database file. Parent directories are created.
	Path string
	// Compression stores new values zstd-compressed.
	Compression bool
}

// Store persists entries in a single WITHOUT ROWID table keyed by the raw key bytes.
type Store struct {
	db          *sql.DB
	compression bool
	recovered   bool
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	recovered := false
	if info, err := os.Stat(cfg.Path); err == nil && info.Size() > 0 {
		recovered = true
	}

	db, err := sql.Open("sqlite", cfg.Path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single connection: concurrent Inserts must not interleave their read and write.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key   BLOB PRIMARY KEY,
			value BLOB,
			codec INTEGER NOT NULL DEFAULT 0
		) WITHOUT ROWID;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()
		_ = db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Store{
		db:          db,
		compression: cfg.Compression,
		recovered:   recovered,
		encoder:     encoder,
		decoder:     decoder,
	}, nil
}

func (s *Store) encode(value []byte) ([]byte, int) {
	if !s.compression {
		return append([]byte{}, value...), codecRaw
	}
	return s.encoder.EncodeAll(value, nil), codecZstd
}

func (s *Store) decode(stored []byte, codec int) ([]byte, error) {
	switch codec {
	case codecRaw:
		if stored == nil {
			return []byte{}, nil
		}
		return stored, nil
	case codecZstd:
		out, err := s.decoder.DecodeAll(stored, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress value: %w", err)
		}
		if out == nil {
			out = []byte{}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown value codec %d", codec)
	}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) get(ctx context.Context, q queryer, key []byte) ([]byte, error) {
	var (
		stored []byte
		codec  int
	)
	err := q.QueryRowContext(ctx, `SELECT value, codec FROM kv WHERE key = ?`, key).Scan(&stored, &codec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select value: %w", err)
	}
	return s.decode(stored, codec)
}

// Get returns the decoded value for key.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	return s.get(ctx, s.db, key)
}

const upsert = `
	INSERT INTO kv (key, value, codec) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, codec = excluded.codec
`

// Insert reads the previous value and writes the new one in one transaction.
func (s *Store) Insert(ctx context.Context, key, value []byte) ([]byte, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := s.get(ctx, tx, key)
	existed := true
	if errors.Is(err, store.ErrNotFound) {
		prev, existed = nil, false
	} else if err != nil {
		return nil, false, err
	}

	encoded, codec := s.encode(value)
	if _, err := tx.ExecContext(ctx, upsert, key, encoded, codec); err != nil {
		return nil, false, fmt.Errorf("upsert value: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit insert: %w", err)
	}
	return prev, existed, nil
}

// ApplyBatch upserts every op in a single transaction.
func (s *Store) ApplyBatch(ctx context.Context, b *store.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, op := range b.Ops() {
		encoded, codec := s.encode(op.Value)
		if _, err := stmt.ExecContext(ctx, op.Key, encoded, codec); err != nil {
			return fmt.Errorf("upsert key %q: %w", op.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Len counts rows.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Checksum hashes decoded values in key order. SQLite orders BLOBs with memcmp.
func (s *Store) Checksum(ctx context.Context) (uint64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, codec FROM kv ORDER BY key`)
	if err != nil {
		return 0, fmt.Errorf("scan entries: %w", err)
	}
	defer rows.Close()

	sum := store.NewChecksum()
	for rows.Next() {
		var (
			key, stored []byte
			codec       int
		)
		if err := rows.Scan(&key, &stored, &codec); err != nil {
			return 0, fmt.Errorf("scan entry: %w", err)
		}
		value, err := s.decode(stored, codec)
		if err != nil {
			return 0, err
		}
		sum.Add(key, value)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate entries: %w", err)
	}
	return sum.Sum64(), nil
}

// WasRecovered reports whether the database file held data before Open.
func (s *Store) WasRecovered() bool { return s.recovered }

// Close releases the database and codec resources.
func (s *Store) Close() error {
	s.decoder.Close()
	encErr := s.encoder.Close()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return encErr
}
