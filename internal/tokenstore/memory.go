package tokenstore

import (
	"context"
	"errors"
	"sync"
)

// errNoToken is returned by MemoryStore when nothing has been written yet.
var errNoToken = errors.New("no token stored")

// MemoryStore keeps the token in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// Compile-time check to ensure MemoryStore implements TokenStore
var _ TokenStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", errNoToken
	}
	return m.token, nil
}

func (m *MemoryStore) Write(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}
