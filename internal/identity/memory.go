package identity

import (
	"context"
	"sync"
	"time"
)

var (
	_ RegisteredStore  = (*MemRegisteredStore)(nil)
	_ ProvisionalStore = (*MemProvisionalStore)(nil)
)

// MemRegisteredStore is an in-memory RegisteredStore with the same
// uniqueness guarantees as the Postgres implementation. Used in tests and
// local development without a database.
type MemRegisteredStore struct {
	mu      sync.RWMutex
	byID    map[string]*RegisteredUser
	byEmail map[string]string
}

func NewMemRegisteredStore() *MemRegisteredStore {
	return &MemRegisteredStore{
		byID:    make(map[string]*RegisteredUser),
		byEmail: make(map[string]string),
	}
}

func (s *MemRegisteredStore) Create(_ context.Context, u *RegisteredUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[u.Email]; taken {
		return ErrAlreadyExists
	}
	clone := *u
	s.byID[u.UserID] = &clone
	s.byEmail[u.Email] = u.UserID
	return nil
}

func (s *MemRegisteredStore) FindByID(_ context.Context, id string) (*RegisteredUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *MemRegisteredStore) FindByEmail(_ context.Context, email string) (*RegisteredUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *MemRegisteredStore) Update(_ context.Context, u *RegisteredUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[u.UserID]; !ok {
		return ErrNotFound
	}
	clone := *u
	s.byID[u.UserID] = &clone
	s.byEmail[u.Email] = u.UserID
	return nil
}

func (s *MemRegisteredStore) CountByRole(_ context.Context, role Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, u := range s.byID {
		if u.Role == role {
			count++
		}
	}
	return count, nil
}

func (s *MemRegisteredStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = at
	u.UpdatedAt = at
	return nil
}

// MemProvisionalStore is the in-memory counterpart for federated accounts.
type MemProvisionalStore struct {
	mu         sync.RWMutex
	byID       map[string]*ProvisionalUser
	byEmail    map[string]string
	byProvider map[string]string
}

func NewMemProvisionalStore() *MemProvisionalStore {
	return &MemProvisionalStore{
		byID:       make(map[string]*ProvisionalUser),
		byEmail:    make(map[string]string),
		byProvider: make(map[string]string),
	}
}

func (s *MemProvisionalStore) Create(_ context.Context, u *ProvisionalUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[u.Email]; taken {
		return ErrAlreadyExists
	}
	if _, taken := s.byProvider[u.ProviderID]; taken {
		return ErrAlreadyExists
	}
	clone := *u
	s.byID[u.UserID] = &clone
	s.byEmail[u.Email] = u.UserID
	s.byProvider[u.ProviderID] = u.UserID
	return nil
}

func (s *MemProvisionalStore) FindByEmail(_ context.Context, email string) (*ProvisionalUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *MemProvisionalStore) FindByProviderID(_ context.Context, providerID string) (*ProvisionalUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byProvider[providerID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *MemProvisionalStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byEmail, u.Email)
	delete(s.byProvider, u.ProviderID)
	delete(s.byID, id)
	return nil
}

func (s *MemProvisionalStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = at
	u.UpdatedAt = at
	return nil
}
