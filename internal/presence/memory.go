package presence

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps presence in process memory. A restart clears it.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Identity]time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Identity]time.Time),
	}
}

func (m *MemoryStore) Upsert(_ context.Context, id Identity, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.entries[id]; ok && last.After(now) {
		return nil
	}
	m.entries[id] = now
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MemoryStore) EvictOlderThan(_ context.Context, threshold time.Duration, now time.Time) ([]Identity, error) {
	cutoff := now.Add(-threshold)

	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted []Identity
	for id, last := range m.entries {
		if last.Before(cutoff) {
			delete(m.entries, id)
			evicted = append(evicted, id)
		}
	}
	return evicted, nil
}

// LastSeen reports the stored timestamp for id.
func (m *MemoryStore) LastSeen(id Identity) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last, ok := m.entries[id]
	return last, ok
}
