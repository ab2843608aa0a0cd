package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// DefaultTable is the table used when SQLConfig.Table is empty.
const DefaultTable = "streamsession_kv"

// SQLConfig configures an SQL store. Zero values use defaults.
type SQLConfig struct {
	Table     string
	Namespace string // partitions rows, e.g. per provider or per user
}

// SQL stores values in a Postgres table keyed by (namespace, key).
type SQL struct {
	db        *sql.DB
	table     string
	namespace string
}

// OpenPostgres opens a lib/pq connection pool and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return db, nil
}

// NewSQL wraps an open database handle.
func NewSQL(db *sql.DB, cfg SQLConfig) *SQL {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	return &SQL{db: db, table: pq.QuoteIdentifier(table), namespace: cfg.Namespace}
}

// EnsureSchema creates the table if it does not exist.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, key)
)`)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQL) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM `+s.table+` WHERE namespace = $1 AND key = $2`,
		s.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.wrap("get", key, err)
	}
	return value, true, nil
}

// Set implements Store.
func (s *SQL) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.table+` (namespace, key, value, updated_at) VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		s.namespace, key, value,
	)
	if err != nil {
		return s.wrap("set", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQL) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.table+` WHERE namespace = $1 AND key = $2`,
		s.namespace, key,
	)
	if err != nil {
		return s.wrap("delete", key, err)
	}
	return nil
}

// undefinedTable is the Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

func (s *SQL) wrap(op, key string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("store: %s %q: table %s missing, run EnsureSchema: %w", op, key, s.table, err)
	}
	return fmt.Errorf("store: %s %q: %w", op, key, err)
}
