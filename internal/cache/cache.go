// Package cache is an optional content-addressed store of decompiled source,
// keyed by payload fingerprint. Identical bytecode always yields identical
// source, so a hit can resolve a node without touching the service.
package cache

import (
	"context"
	"sync"
)

// Store reads and writes decompiled source by fingerprint. Implementations
// must be safe for concurrent use; a Get miss is ("", false, nil).
type Store interface {
	Get(ctx context.Context, fingerprint string) (string, bool, error)
	Put(ctx context.Context, fingerprint, source string) error
	Close() error
}

// Nop is the default store: never hits, never fails.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (Nop) Put(context.Context, string, string) error         { return nil }
func (Nop) Close() error                                      { return nil }

// Memory is a process-local store, used in tests and available for repeated
// runs within one invocation.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, fingerprint string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.items[fingerprint]
	return src, ok, nil
}

func (m *Memory) Put(_ context.Context, fingerprint, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[fingerprint] = source
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
