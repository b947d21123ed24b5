// Package postgres provides a Postgres-backed completed-asset index shared by
// harvest workers on different hosts.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for the index.
type Config struct {
	DSN             string
	Table           string
	SourceID        string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type queryExecCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Index stores completed filenames keyed by source.
type Index struct {
	pool     queryExecCloser
	table    string
	sourceID string
	now      func() time.Time
}

// New connects to Postgres and makes sure the index table exists.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("index.dsn is required")
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
	idx, err := NewWithPool(pool, cfg.Table, cfg.SourceID)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := idx.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

// NewWithPool constructs an index from an existing pool (primarily for testing).
func NewWithPool(pool queryExecCloser, table, sourceID string) (*Index, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "fetched_assets"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if sourceID == "" {
		return nil, fmt.Errorf("source id is required")
	}
	return &Index{
		pool:     pool,
		table:    table,
		sourceID: sourceID,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureSchema creates the index table when missing.
func (i *Index) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	source_id  TEXT NOT NULL,
	file_name  TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source_id, file_name)
)`, i.table)
	if _, err := i.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create index table: %w", err)
	}
	return nil
}

// Has reports whether name was marked complete for this source.
func (i *Index) Has(ctx context.Context, name string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE source_id = $1 AND file_name = $2)`, i.table)
	var exists bool
	if err := i.pool.QueryRow(ctx, query, i.sourceID, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("query index: %w", err)
	}
	return exists, nil
}

// Mark records name as complete. Marking twice is a no-op.
func (i *Index) Mark(ctx context.Context, name string) error {
	query := fmt.Sprintf(`
INSERT INTO %s (source_id, file_name, fetched_at)
VALUES ($1, $2, $3)
ON CONFLICT (source_id, file_name) DO NOTHING`, i.table)
	if _, err := i.pool.Exec(ctx, query, i.sourceID, name, i.now()); err != nil {
		return fmt.Errorf("insert index row: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (i *Index) Close() error {
	if i == nil || i.pool == nil {
		return nil
	}
	i.pool.Close()
	return nil
}
