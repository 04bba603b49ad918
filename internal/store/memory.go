package store

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in process memory. Useful for tests and for
// embedding where nothing needs to survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Append(ctx context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, e)
	return nil
}

func (m *MemoryStore) Events(ctx context.Context) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy so callers never see later appends.
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = nil
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
