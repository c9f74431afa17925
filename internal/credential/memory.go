package credential

import (
	"context"
	"sync"
)

// MemoryStore keeps the token in process memory. Used by tests and by the
// "memory" backend for throwaway sessions.
type MemoryStore struct {
	mu    sync.Mutex
	token string
	set   bool
}

// NewMemoryStore returns an empty store, or one pre-loaded with token when
// token is non-empty.
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token, set: token != ""}
}

func (m *MemoryStore) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return "", ErrNotFound
	}
	return m.token, nil
}

func (m *MemoryStore) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.set = token, true
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.set = "", false
	return nil
}

func (m *MemoryStore) Close() error { return nil }
