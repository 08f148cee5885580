package store

import (
	"context"
	"slices"
	"sync"
)

var _ KV = (*MemoryKV)(nil)

// MemoryKV is an in-process KV used for ephemeral runs and tests.
type MemoryKV struct {
	mu     sync.RWMutex
	data   map[string][]byte
	writes int
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return slices.Clone(v), ok, nil
}

// Put stores a copy of value under key.
func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = slices.Clone(value)
	m.writes++
	return nil
}

// Writes returns how many Put calls have succeeded.
func (m *MemoryKV) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
