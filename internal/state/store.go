package state

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a workspace has no canonical state.
var ErrNotFound = errors.New("workspace state not found")

// Store is the persistence collaborator contract: canonical state lookup
// keyed by workspace. The synchronization core never writes through it.
type Store interface {
	GetState(ctx context.Context, workspaceID string) (map[string]any, error)
}

// MemoryStore is an in-process Store for tests and diagnostics.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]map[string]any
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]map[string]any)}
}

// GetState returns the stored state for a workspace, or ErrNotFound.
func (m *MemoryStore) GetState(ctx context.Context, workspaceID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[workspaceID]
	if !ok {
		return nil, ErrNotFound
	}

	// Shallow copy so callers cannot mutate the stored map
	out := make(map[string]any, len(st))
	for k, v := range st {
		out[k] = v
	}
	return out, nil
}

// SetState stores state for a workspace. Test and diagnostic seam; not
// part of the Store contract.
func (m *MemoryStore) SetState(workspaceID string, st map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[workspaceID] = st
}
