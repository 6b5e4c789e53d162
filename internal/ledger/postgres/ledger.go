// Package postgres records crawl runs in a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FridgeSeal/swarm/internal/crawler"
)

// DefaultTable holds one row per run.
const DefaultTable = "crawl_runs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Ledger implements crawler.Ledger.
type Ledger struct {
	db    querier
	table string
}

var _ crawler.Ledger = (*Ledger)(nil)

// Open connects a pool described by cfg.
func Open(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("open ledger: dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	l, err := newLedger(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

func newLedger(db querier, table string) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("open ledger: pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("open ledger: invalid table name %q", table)
	}
	return &Ledger{db: db, table: table}, nil
}

// EnsureSchema creates the runs table when it does not exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id          TEXT PRIMARY KEY,
	root            TEXT NOT NULL,
	status          TEXT NOT NULL,
	error_text      TEXT,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL,
	content_pages   INTEGER NOT NULL,
	directory_pages INTEGER NOT NULL,
	fetched         INTEGER NOT NULL,
	extracted       INTEGER NOT NULL,
	extract_failed  INTEGER NOT NULL,
	written         INTEGER NOT NULL
)`, l.table)
	if _, err := l.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// RecordRun upserts the report keyed by run id.
func (l *Ledger) RecordRun(ctx context.Context, report crawler.Report) error {
	if report.RunID == "" {
		return errors.New("record run: run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id, root, status, error_text, started_at, finished_at,
	content_pages, directory_pages, fetched, extracted, extract_failed, written
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (run_id) DO UPDATE SET
	status = EXCLUDED.status,
	error_text = EXCLUDED.error_text,
	finished_at = EXCLUDED.finished_at,
	content_pages = EXCLUDED.content_pages,
	directory_pages = EXCLUDED.directory_pages,
	fetched = EXCLUDED.fetched,
	extracted = EXCLUDED.extracted,
	extract_failed = EXCLUDED.extract_failed,
	written = EXCLUDED.written`, l.table)

	var errText *string
	if report.Error != "" {
		errText = &report.Error
	}
	_, err := l.db.Exec(ctx, query,
		report.RunID,
		report.Root,
		report.Status,
		errText,
		report.StartedAt,
		report.FinishedAt,
		report.ContentPages,
		report.DirectoryPages,
		report.Fetched,
		report.Extracted,
		report.ExtractFailed,
		report.Written,
	)
	if err != nil {
		return fmt.Errorf("insert crawl run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]crawler.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
SELECT run_id, root, status, error_text, started_at, finished_at,
	content_pages, directory_pages, fetched, extracted, extract_failed, written
FROM %s ORDER BY started_at DESC LIMIT $1`, l.table)

	rows, err := l.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query crawl runs: %w", err)
	}
	defer rows.Close()

	var out []crawler.Report
	for rows.Next() {
		var (
			r       crawler.Report
			errText *string
		)
		if err := rows.Scan(&r.RunID, &r.Root, &r.Status, &errText, &r.StartedAt, &r.FinishedAt,
			&r.ContentPages, &r.DirectoryPages, &r.Fetched, &r.Extracted, &r.ExtractFailed, &r.Written); err != nil {
			return nil, fmt.Errorf("scan crawl run: %w", err)
		}
		if errText != nil {
			r.Error = *errText
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crawl runs: %w", err)
	}
	return out, nil
}

// Close releases the pool.
func (l *Ledger) Close() {
	if l == nil || l.db == nil {
		return
	}
	l.db.Close()
}
