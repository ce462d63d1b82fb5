/*
Package store is the keyed-store collaborator behind the user directory and the room registry.

The core only needs get/put/delete by key plus a full listing. Two backends exist: an
in-process map (the default) and a PostgreSQL table shared by namespaces.
*/
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a namespaced key-value collection of T.
type Store[T any] interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (T, bool, error)

	// Put inserts or replaces the value for key.
	Put(ctx context.Context, key string, value T) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every value ordered by key.
	List(ctx context.Context) ([]T, error)

	// Clear removes every key of the namespace.
	Clear(ctx context.Context) error
}

// New returns a PostgreSQL-backed store for namespace when pool is non-nil and an
// in-memory store otherwise.
func New[T any](pool *pgxpool.Pool, namespace string) Store[T] {
	if pool == nil {
		return NewMemory[T]()
	}
	return NewPostgres[T](pool, namespace)
}

// Memory is a Store kept in a map guarded by a RWMutex.
type Memory[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewMemory creates an empty in-memory store.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{items: make(map[string]T)}
}

func (m *Memory[T]) Get(_ context.Context, key string) (T, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory[T]) Put(_ context.Context, key string, value T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = value
	return nil
}

func (m *Memory[T]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

func (m *Memory[T]) List(_ context.Context) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.items[k])
	}
	return out, nil
}

func (m *Memory[T]) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]T)
	return nil
}

var _ Store[string] = (*Memory[string])(nil)
