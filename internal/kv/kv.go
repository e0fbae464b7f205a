// ABOUTME: Minimal key-value persistence capability injected into client-side components.
// ABOUTME: Memory implementation included; the store package provides the SQLite-backed one.

package kv

import (
	"context"
	"sync"
)

// Store is the persistence capability consumed by the queue and draft
// components. Implementations are expected to be last-write-wins; callers
// treat their own in-memory state as authoritative and use the store only
// for recovery across restarts.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes the value for key, replacing any existing value.
	Set(ctx context.Context, key, value string) error
	// Delete removes the value for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Memory is an in-process Store. Useful in tests and as the degraded
// fallback when no durable backend is available.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

var _ Store = (*Memory)(nil)
