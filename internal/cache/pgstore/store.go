// Package pgstore is a PostgreSQL-backed cache tier over the query_cache table.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/and161185/hcservices/internal/cache"
	"github.com/and161185/hcservices/internal/errs"
)

// PgxPool is the part of a connection pool the store uses.
// It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements cache.Tier on Postgres. Expired rows are ignored on read and removed by Purge.
type Store struct {
	pool PgxPool
	now  func() time.Time
}

var _ cache.Tier = (*Store)(nil)

// New wraps pool.
func New(pool PgxPool) *Store { return &Store{pool: pool, now: time.Now} }

// Open creates a connection pool for dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return New(pool), nil
}

// Close closes the underlying pool.
func (s *Store) Close() { s.pool.Close() }

// Get selects an unexpired value or returns errs.ErrCacheMiss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `
SELECT value FROM query_cache
WHERE key=$1 AND expires_at > $2`
	var val []byte
	if err := s.pool.QueryRow(ctx, q, key, s.now()).Scan(&val); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrCacheMiss
		}
		return nil, fmt.Errorf("query_cache get: %w", err)
	}
	return val, nil
}

// Set upserts val for key, expiring ttl from now.
func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	const q = `
INSERT INTO query_cache (key, value, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, expires_at=EXCLUDED.expires_at, updated_at=now()`
	if _, err := s.pool.Exec(ctx, q, key, val, s.now().Add(ttl)); err != nil {
		return fmt.Errorf("query_cache set: %w", err)
	}
	return nil
}

// Delete removes key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM query_cache WHERE key=$1`
	if _, err := s.pool.Exec(ctx, q, key); err != nil {
		return fmt.Errorf("query_cache delete: %w", err)
	}
	return nil
}

// Purge deletes expired rows and reports how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	const q = `DELETE FROM query_cache WHERE expires_at <= $1`
	tag, err := s.pool.Exec(ctx, q, s.now())
	if err != nil {
		return 0, fmt.Errorf("query_cache purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
