// Package progress persists small key/value state per task instance, and
// exposes the resume cursor on top of it.
package progress

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/okian/statsmail/internal/config"
)

// Store is the harness key/value space. Values are strings; keys are scoped
// by task id.
type Store interface {
	Get(ctx context.Context, taskID, key string) (string, bool, error)
	Put(ctx context.Context, taskID, key, value string) error
	Close() error
}

// Open returns the store for the configured driver.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case config.ProgressDriverMemory:
		return NewMemoryStore(), nil
	case config.ProgressDriverSQLite:
		return OpenSQLite(dsn)
	default:
		return nil, errors.Mark(errors.Newf("driver %q", driver), ErrUnknownDriver)
	}
}

type stateKey struct {
	taskID string
	key    string
}

// MemoryStore keeps state in process memory. Used in tests and dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[stateKey]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[stateKey]string)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, taskID, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[stateKey{taskID, key}]
	return v, ok, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, taskID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[stateKey{taskID, key}] = value
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
