// Package memory provides an in-process store.Store.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/trustchain/pkg/store"
)

type memoryStore struct {
	mu    sync.RWMutex
	blobs map[store.Role][]byte
}

// New returns an empty store.
func New() store.Store {
	return &memoryStore{blobs: make(map[store.Role][]byte)}
}

func (m *memoryStore) Load(_ context.Context, role store.Role) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.blobs[role]
	if !ok {
		return nil, serrors.Wrap("loading certificate", store.ErrNotFound, "role", role)
	}
	return slices.Clone(v), nil
}

func (m *memoryStore) Save(_ context.Context, role store.Role, blob []byte) error {
	if role == "" {
		return serrors.New("empty role")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[role] = slices.Clone(blob)
	return nil
}

func (m *memoryStore) List(_ context.Context) ([]store.Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roles := make([]store.Role, 0, len(m.blobs))
	for r := range m.blobs {
		roles = append(roles, r)
	}
	slices.Sort(roles)
	return roles, nil
}

func (m *memoryStore) Close() error {
	return nil
}
