// Package memory holds the bijective account↔nullifier map in process memory.
//
// Both directions of the map are written under one lock so every mutation is
// all-or-nothing and the bijection can never be observed half-updated.
package memory

import (
	"context"
	"sync"

	id "nymreg/pkg/domain"
	"nymreg/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	byAccount map[id.Account]id.Nullifier
	byNull    map[id.Nullifier]id.Account
}

func New() *InMemoryStore {
	return &InMemoryStore{
		byAccount: make(map[id.Account]id.Nullifier),
		byNull:    make(map[id.Nullifier]id.Account),
	}
}

func (s *InMemoryStore) NullifierOf(_ context.Context, account id.Account) (id.Nullifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.byAccount[account]; ok {
		return n, nil
	}
	return id.Nullifier{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) AccountOf(_ context.Context, nullifier id.Nullifier) (id.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.byNull[nullifier]; ok {
		return a, nil
	}
	return id.Account{}, sentinel.ErrNotFound
}

// Bind registers a fresh binding. ErrConflict when the account is already
// bound, ErrTaken when the nullifier belongs to any account.
func (s *InMemoryStore) Bind(_ context.Context, account id.Account, nullifier id.Nullifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAccount[account]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byNull[nullifier]; ok {
		return sentinel.ErrTaken
	}
	s.byAccount[account] = nullifier
	s.byNull[nullifier] = account
	return nil
}

// Rebind swaps the account's nullifier atomically; the account stays bound
// throughout. ErrNotFound when the account is unbound, ErrTaken when the new
// nullifier belongs to any account (including this one).
func (s *InMemoryStore) Rebind(_ context.Context, account id.Account, newNullifier id.Nullifier) (id.Nullifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byAccount[account]
	if !ok {
		return id.Nullifier{}, sentinel.ErrNotFound
	}
	if _, ok := s.byNull[newNullifier]; ok {
		return id.Nullifier{}, sentinel.ErrTaken
	}
	delete(s.byNull, old)
	s.byAccount[account] = newNullifier
	s.byNull[newNullifier] = account
	return old, nil
}

// Unbind removes both directions of the binding and returns the freed
// nullifier. ErrNotFound when the account is unbound.
func (s *InMemoryStore) Unbind(_ context.Context, account id.Account) (id.Nullifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byAccount[account]
	if !ok {
		return id.Nullifier{}, sentinel.ErrNotFound
	}
	delete(s.byAccount, account)
	delete(s.byNull, old)
	return old, nil
}
