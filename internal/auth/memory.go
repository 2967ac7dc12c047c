package auth

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps accounts in process memory. It mirrors the behavior of
// the SQL-backed store, including uniqueness enforcement at insert time, and
// is used by tests and local tooling.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[int64]*Account
	bySafe  map[string]int64
	byEmail map[string]int64
	nextID  int64
}

// NewInMemoryStore returns an empty store. Assigned ids start above the
// reserved bot id.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[int64]*Account),
		bySafe:  make(map[string]int64),
		byEmail: make(map[string]int64),
		nextID:  BotAccountID + 1,
	}
}

func (s *InMemoryStore) FindByID(ctx context.Context, id int64) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (s *InMemoryStore) FindBySafeName(ctx context.Context, safeName string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySafe[safeName]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *InMemoryStore) NameExists(ctx context.Context, safeName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bySafe[safeName]
	return ok, nil
}

func (s *InMemoryStore) EmailExists(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *InMemoryStore) Create(ctx context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bySafe[a.SafeName]; ok {
		return ErrNameTaken
	}
	if _, ok := s.byEmail[a.Email]; ok {
		return ErrEmailTaken
	}
	if a.ID == 0 {
		a.ID = s.nextID
		s.nextID++
	} else if a.ID >= s.nextID {
		s.nextID = a.ID + 1
	}
	if a.PasswordChangedAt.IsZero() {
		a.PasswordChangedAt = time.Now().UTC()
	}
	clone := *a
	s.byID[clone.ID] = &clone
	s.bySafe[clone.SafeName] = clone.ID
	s.byEmail[clone.Email] = clone.ID
	return nil
}

func (s *InMemoryStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.PasswordChangedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) UpdateName(ctx context.Context, id int64, name, safeName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if holder, taken := s.bySafe[safeName]; taken && holder != id {
		return ErrNameTaken
	}
	delete(s.bySafe, a.SafeName)
	a.Name = name
	a.SafeName = safeName
	s.bySafe[safeName] = id
	return nil
}

func (s *InMemoryStore) UpdateEmail(ctx context.Context, id int64, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if holder, taken := s.byEmail[email]; taken && holder != id {
		return ErrEmailTaken
	}
	delete(s.byEmail, a.Email)
	a.Email = email
	s.byEmail[email] = id
	return nil
}

func (s *InMemoryStore) TouchActivity(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.LatestActivity = time.Now().UTC()
	return nil
}

// SetPrivileges overwrites the privilege mask, for tests and tooling that
// need to verify or ban an account without a moderation surface.
func (s *InMemoryStore) SetPrivileges(id int64, priv Privileges) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.byID[id]; ok {
		a.Priv = priv
	}
}
