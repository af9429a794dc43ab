package persist

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	blob      []byte
	expiresAt time.Time
}

// MemoryStorage keeps blobs in process memory.
type MemoryStorage struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	sessionTTL time.Duration
	now        func() time.Time
}

func NewMemoryStorage(sessionTTL time.Duration) *MemoryStorage {
	return &MemoryStorage{
		entries:    make(map[string]memoryEntry),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || m.expired(e) {
		return nil, false, nil
	}
	out := make([]byte, len(e.blob))
	copy(out, e.blob)
	return out, true, nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, blob []byte, scope Scope) error {
	b := make([]byte, len(blob))
	copy(b, blob)
	m.mu.Lock()
	m.entries[key] = memoryEntry{blob: b, expiresAt: expiry(m.now(), scope, m.sessionTTL)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired session blobs and returns how many were removed.
func (m *MemoryStorage) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStorage) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}
