package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	getQuery = `SELECT value FROM kv_entries WHERE namespace = $1 AND key = $2`

	putQuery = `INSERT INTO kv_entries (namespace, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	deleteQuery = `DELETE FROM kv_entries WHERE namespace = $1 AND key = $2`

	listQuery = `SELECT value FROM kv_entries WHERE namespace = $1 ORDER BY key`

	clearQuery = `DELETE FROM kv_entries WHERE namespace = $1`
)

// Postgres stores JSON-encoded values in the kv_entries table under one namespace.
type Postgres[T any] struct {
	pool      *pgxpool.Pool
	namespace string
}

// NewPostgres creates a store for namespace on pool. The table is created by the
// migrations in package db.
func NewPostgres[T any](pool *pgxpool.Pool, namespace string) *Postgres[T] {
	return &Postgres[T]{pool: pool, namespace: namespace}
}

func (p *Postgres[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	var raw []byte

	err := p.pool.QueryRow(ctx, getQuery, p.namespace, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("get %s/%s: %w", p.namespace, key, err)
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, false, fmt.Errorf("decode %s/%s: %w", p.namespace, key, err)
	}
	return value, true, nil
}

func (p *Postgres[T]) Put(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", p.namespace, key, err)
	}

	if _, err := p.pool.Exec(ctx, putQuery, p.namespace, key, raw); err != nil {
		return fmt.Errorf("put %s/%s: %w", p.namespace, key, err)
	}
	return nil
}

func (p *Postgres[T]) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, deleteQuery, p.namespace, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", p.namespace, key, err)
	}
	return nil
}

func (p *Postgres[T]) List(ctx context.Context) ([]T, error) {
	rows, err := p.pool.Query(ctx, listQuery, p.namespace)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p.namespace, err)
	}

	raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p.namespace, err)
	}

	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var value T
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("decode %s entry: %w", p.namespace, err)
		}
		out = append(out, value)
	}
	return out, nil
}

func (p *Postgres[T]) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, clearQuery, p.namespace); err != nil {
		return fmt.Errorf("clear %s: %w", p.namespace, err)
	}
	return nil
}

var _ Store[string] = (*Postgres[string])(nil)
