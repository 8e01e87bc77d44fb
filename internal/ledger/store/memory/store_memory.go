// Package memory keeps balance records and the running total in process
// memory. The running total is maintained, never recomputed: every mutation
// updates balances and total under one lock, all-or-nothing.
package memory

import (
	"context"
	"sync"

	id "nymreg/pkg/domain"
	"nymreg/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	balances  map[id.Account]uint64
	total     uint64
	globalCap uint64
}

func New(globalCap uint64) *InMemoryStore {
	return &InMemoryStore{
		balances:  make(map[id.Account]uint64),
		globalCap: globalCap,
	}
}

// Balance returns the account's record, zero when none exists. Records are
// created implicitly at first mint and never removed.
func (s *InMemoryStore) Balance(_ context.Context, account id.Account) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account], nil
}

func (s *InMemoryStore) TotalIssued(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total, nil
}

// Mint credits the account and advances the running total together, returning
// the new total. ErrCapExceeded when the total would pass the global cap.
func (s *InMemoryStore) Mint(_ context.Context, account id.Account, amount uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount > s.globalCap-s.total {
		return 0, sentinel.ErrCapExceeded
	}
	s.balances[account] += amount
	s.total += amount
	return s.total, nil
}

// Transfer debits from and credits to atomically. ErrInsufficient when the
// sender's balance is too small; no state changes on failure.
func (s *InMemoryStore) Transfer(_ context.Context, from, to id.Account, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[from] < amount {
		return sentinel.ErrInsufficient
	}
	s.balances[from] -= amount
	s.balances[to] += amount
	return nil
}
