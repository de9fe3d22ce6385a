// Package postgres provides a PostgreSQL-backed ports.Storage using a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/fable/pkg/domain"
	"github.com/aretw0/fable/pkg/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable holds stored values unless WithTable says otherwise.
const DefaultTable = "fable_kv"

// Store implements ports.Storage over a single key/value table.
type Store struct {
	db    *pgxpool.Pool
	table string
}

var _ ports.Storage = (*Store)(nil)

type Option func(*Store)

// WithTable overrides the table name. It is interpolated into SQL, so it
// must come from configuration, never from user input.
func WithTable(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.table = name
		}
	}
}

// New creates a Store backed by the given pool.
func New(db *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a pool for dsn, checks it and creates the schema.
func Connect(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s := New(pool, opts...)
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// CreateSchema creates the table if it does not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.ident()))
	if err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	return nil
}

// DropSchema drops the table.
func (s *Store) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS `+s.ident())
	return err
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

// Save upserts a value.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("postgres: key is required")
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, s.ident()),
		key, data,
	)
	if err != nil {
		return fmt.Errorf("postgres: save %s: %w", key, err)
	}
	return nil
}

// Load reads a value.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.ident()), key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: load %s: %w", key, err)
	}
	return data, nil
}

// Delete removes a value.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.ident()), key); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", key, err)
	}
	return nil
}

// List returns keys with the given prefix, sorted bytewise.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT key FROM %s WHERE left(key, length($1)) = $1 ORDER BY key COLLATE "C"`, s.ident()),
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// Exists reports whether key is stored.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE key = $1)`, s.ident()), key).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres: exists %s: %w", key, err)
	}
	return ok, nil
}

// Stats counts rows and payload bytes.
func (s *Store) Stats(ctx context.Context) (ports.StorageStats, error) {
	stats := ports.StorageStats{Backend: "postgres"}
	err := s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT COUNT(*), COALESCE(SUM(octet_length(value)), 0) FROM %s`, s.ident()),
	).Scan(&stats.Keys, &stats.Bytes)
	if err != nil {
		return ports.StorageStats{}, fmt.Errorf("postgres: stats: %w", err)
	}
	return stats, nil
}

// Clear deletes every row.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM `+s.ident()); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}
