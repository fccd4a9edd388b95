// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/crawl-coordinator/internal/coordinator"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PageStoreConfig controls the Postgres connection pool used for page rows.
type PageStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxQuerier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// PageStore upserts page-metadata rows into Postgres, one row per
// (run_id, url).
type PageStore struct {
	pool  pgxQuerier
	table string
}

// NewPageStore creates a Postgres-backed PageStore using the provided config.
func NewPageStore(ctx context.Context, cfg PageStoreConfig) (*PageStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pages.db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PageStore{pool: pool, table: table}, nil
}

// NewPageStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewPageStoreWithPool(pool pgxQuerier, table string) (*PageStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PageStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *PageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert inserts the row for (page.RunID, page.URL), replacing the prior
// row when the worker re-reports the same URL.
func (s *PageStore) Upsert(ctx context.Context, page coordinator.PageRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("page store is not configured")
	}
	if page.RunID == "" || page.URL == "" {
		return fmt.Errorf("run id and url are required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	url,
	domain,
	status,
	content_hash,
	content_size,
	response_time_ms,
	fetched_at,
	error_text
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (run_id, url) DO UPDATE SET
	domain = EXCLUDED.domain,
	status = EXCLUDED.status,
	content_hash = EXCLUDED.content_hash,
	content_size = EXCLUDED.content_size,
	response_time_ms = EXCLUDED.response_time_ms,
	fetched_at = EXCLUDED.fetched_at,
	error_text = EXCLUDED.error_text`, s.table)

	args := []any{
		page.RunID,
		page.URL,
		page.Domain,
		page.Status,
		page.ContentHash,
		page.ContentSize,
		page.ResponseTimeMs,
		page.FetchedAt,
		page.Error,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	return nil
}

// List returns all page rows for a run ordered by fetch time.
func (s *PageStore) List(ctx context.Context, runID string) ([]coordinator.PageRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("page store is not configured")
	}
	query := fmt.Sprintf(`
SELECT run_id, url, domain, status, content_hash, content_size, response_time_ms, fetched_at, error_text
FROM %s
WHERE run_id = $1
ORDER BY fetched_at, url`, s.table)

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var out []coordinator.PageRecord
	for rows.Next() {
		var page coordinator.PageRecord
		if err := rows.Scan(
			&page.RunID,
			&page.URL,
			&page.Domain,
			&page.Status,
			&page.ContentHash,
			&page.ContentSize,
			&page.ResponseTimeMs,
			&page.FetchedAt,
			&page.Error,
		); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		out = append(out, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page rows: %w", err)
	}
	return out, nil
}
