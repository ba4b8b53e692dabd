// Package postgres provides the Postgres-backed download history.
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

	"github.com/JakeFAU/mediavid-client/internal/store"
)

// DefaultHistoryTable is used when no table name is configured.
const DefaultHistoryTable = "download_history"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// HistoryStoreConfig controls the Postgres connection pool.
type HistoryStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// HistoryStore implements store.HistoryRepository.
type HistoryStore struct {
	pool  pool
	table string
}

var _ store.HistoryRepository = (*HistoryStore)(nil)

// NewHistoryStore connects a pool using cfg.
func NewHistoryStore(ctx context.Context, cfg HistoryStoreConfig) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	table, err := resolveTable(cfg.Table)
	if err != nil {
		return nil, err
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewHistoryStoreWithPool(p, table)
}

// NewHistoryStoreWithPool wraps an existing pool (pgxmock in tests).
func NewHistoryStoreWithPool(p pool, table string) (*HistoryStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	table, err := resolveTable(table)
	if err != nil {
		return nil, err
	}
	return &HistoryStore{pool: p, table: table}, nil
}

func resolveTable(table string) (string, error) {
	if table == "" {
		table = DefaultHistoryTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the pool.
func (s *HistoryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the history table when it does not exist.
func (s *HistoryStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           BIGSERIAL PRIMARY KEY,
	item_id      TEXT NOT NULL,
	download_url TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL DEFAULT '',
	outcome      TEXT NOT NULL,
	bytes        BIGINT NOT NULL DEFAULT 0,
	sha256       TEXT NOT NULL DEFAULT '',
	note         TEXT NOT NULL DEFAULT '',
	recorded_at  TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// RecordDownload inserts one history row.
func (s *HistoryStore) RecordDownload(ctx context.Context, rec store.HistoryRecord) error {
	if s == nil || s.pool == nil {
		return store.ErrNotConfigured
	}
	if rec.ItemID == "" {
		return errors.New("item id is required")
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (item_id, download_url, location, outcome, bytes, sha256, note, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.table)
	if _, err := s.pool.Exec(ctx, query,
		rec.ItemID,
		rec.DownloadURL,
		rec.Location,
		string(rec.Outcome),
		rec.Bytes,
		rec.Checksum,
		rec.Note,
		rec.RecordedAt,
	); err != nil {
		return fmt.Errorf("insert history row: %w", err)
	}
	return nil
}

// ListRecent returns up to limit rows, newest first. A limit <= 0 returns all.
func (s *HistoryStore) ListRecent(ctx context.Context, limit int) ([]store.HistoryRecord, error) {
	if s == nil || s.pool == nil {
		return nil, store.ErrNotConfigured
	}
	query := fmt.Sprintf(`
SELECT id, item_id, download_url, location, outcome, bytes, sha256, note, recorded_at
FROM %s
ORDER BY recorded_at DESC, id DESC`, s.table)
	args := []any{}
	if limit > 0 {
		query += "\nLIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []store.HistoryRecord
	for rows.Next() {
		var (
			rec     store.HistoryRecord
			outcome string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.ItemID,
			&rec.DownloadURL,
			&rec.Location,
			&outcome,
			&rec.Bytes,
			&rec.Checksum,
			&rec.Note,
			&rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		rec.Outcome = store.Outcome(outcome)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}
