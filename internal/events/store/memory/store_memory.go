package memory

import (
	"context"
	"sync"

	"nymreg/internal/events"
	id "nymreg/pkg/domain"
)

// InMemoryStore keeps events per account. Default store for tests and
// single-node deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	byAcct  map[id.Account][]events.Event
	ordered []events.Event
}

func New() *InMemoryStore {
	return &InMemoryStore{byAcct: make(map[id.Account][]events.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAcct[event.Account] = append(s.byAcct[event.Account], event)
	s.ordered = append(s.ordered, event)
	return nil
}

func (s *InMemoryStore) ListByAccount(_ context.Context, account id.Account) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Event{}, s.byAcct[account]...), nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.ordered) - limit
	if start < 0 {
		start = 0
	}
	return append([]events.Event{}, s.ordered[start:]...), nil
}
