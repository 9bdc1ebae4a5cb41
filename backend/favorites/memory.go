package favorites

import (
	"context"
	"sync"

	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps favorites for the lifetime of the process.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]mediaprovider.PlaylistEntry
	watchers watchers
}

func NewMemoryStore(initial ...mediaprovider.PlaylistEntry) *MemoryStore {
	m := &MemoryStore{entries: make(map[string]mediaprovider.PlaylistEntry)}
	for _, e := range initial {
		m.entries[e.ID] = e
	}
	return m
}

func (m *MemoryStore) Watch(ctx context.Context, id string, onChange func(bool)) func() {
	w, cancel := m.watchers.add(ctx, id, onChange)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	w.deliver(ok)
	return cancel
}

func (m *MemoryStore) Add(_ context.Context, entry mediaprovider.PlaylistEntry) error {
	m.mu.Lock()
	m.entries[entry.ID] = entry
	m.mu.Unlock()
	m.watchers.notify(entry.ID, true)
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, entry mediaprovider.PlaylistEntry) error {
	m.mu.Lock()
	_, ok := m.entries[entry.ID]
	delete(m.entries, entry.ID)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.watchers.notify(entry.ID, false)
	return nil
}

// Entries returns a snapshot of all favorites.
func (m *MemoryStore) Entries() []mediaprovider.PlaylistEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mediaprovider.PlaylistEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}
