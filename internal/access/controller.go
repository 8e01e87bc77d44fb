// Package access implements the administrator and pause gates consulted by
// every state-mutating entry point.
package access

import (
	"sync"

	id "nymreg/pkg/domain"
	dErrors "nymreg/pkg/domain-errors"
)

var (
	// ErrNotAuthorized rejects non-administrator callers of admin-gated
	// operations.
	ErrNotAuthorized = dErrors.New(dErrors.CodeForbidden, "administrator only")
	// ErrPaused rejects mutating operations while the pause flag is set.
	// Reads are never gated.
	ErrPaused = dErrors.New(dErrors.CodeUnavailable, "registry is paused")
)

// Controller holds the administrator identity and the pause flag. The two
// checks are independent gates: an entry point may require both, one, or (for
// reads) neither.
type Controller struct {
	mu     sync.RWMutex
	admin  id.Account
	paused bool
}

// New builds a controller with the administrator fixed at construction. The
// identity is transferable only by the current administrator.
func New(admin id.Account) *Controller {
	return &Controller{admin: admin}
}

// Admin returns the current administrator identity.
func (c *Controller) Admin() id.Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.admin
}

// Paused reports the pause flag. Exposed for health output and metrics.
func (c *Controller) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// RequireAdmin fails with ErrNotAuthorized unless actor is the administrator.
func (c *Controller) RequireAdmin(actor id.Account) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if actor.IsZero() || actor != c.admin {
		return ErrNotAuthorized
	}
	return nil
}

// RequireActive fails with ErrPaused while the registry is paused.
func (c *Controller) RequireActive() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.paused {
		return ErrPaused
	}
	return nil
}

// Pause sets the pause flag. Administrator only. Pausing an already-paused
// registry is a no-op, not an error.
func (c *Controller) Pause(actor id.Account) error {
	return c.setPaused(actor, true)
}

// Unpause clears the pause flag. Administrator only.
func (c *Controller) Unpause(actor id.Account) error {
	return c.setPaused(actor, false)
}

func (c *Controller) setPaused(actor id.Account, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if actor.IsZero() || actor != c.admin {
		return ErrNotAuthorized
	}
	c.paused = paused
	return nil
}

// TransferAdmin hands the administrator identity to newAdmin. Only the current
// administrator may call it; the zero account is rejected so the gate can
// never be bricked open.
func (c *Controller) TransferAdmin(actor, newAdmin id.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if actor.IsZero() || actor != c.admin {
		return ErrNotAuthorized
	}
	if newAdmin.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "new administrator cannot be the zero account")
	}
	c.admin = newAdmin
	return nil
}
