package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryAccountStore is a thread-safe in-memory AccountStore.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]Account
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[uuid.UUID]Account)}
}

func (s *MemoryAccountStore) Put(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

func (s *MemoryAccountStore) GetAccount(_ context.Context, id uuid.UUID) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}
