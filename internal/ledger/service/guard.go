package service

import (
	"sync"

	id "nymreg/pkg/domain"
)

// inProgressGuard tracks accounts with a ledger mutation in flight so a
// second request for the same account is rejected instead of interleaved.
type inProgressGuard struct {
	mu     sync.Mutex
	active map[id.Account]struct{}
}

func newInProgressGuard() *inProgressGuard {
	return &inProgressGuard{active: make(map[id.Account]struct{})}
}

// enter reserves the account. It reports false when the account already
// has an operation in flight.
func (g *inProgressGuard) enter(account id.Account) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[account]; busy {
		return false
	}
	g.active[account] = struct{}{}
	return true
}

func (g *inProgressGuard) exit(account id.Account) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, account)
}
