// Package service implements the identity registry state machine: the
// bijective account↔nullifier map and its register / logout / re-login /
// admin-recover transitions.
//
// Every mutating entry point consults the access controller first, then (for
// self-service transitions) the signature verifier, and only then touches the
// store. Any unmet precondition aborts before any mutation.
package service

import (
	"context"
	"errors"
	"log/slog"

	"nymreg/internal/access"
	"nymreg/internal/events"
	"nymreg/internal/registry/metrics"
	"nymreg/internal/verifier"
	id "nymreg/pkg/domain"
	dErrors "nymreg/pkg/domain-errors"
	"nymreg/pkg/platform/sentinel"
	"nymreg/pkg/requestcontext"
)

// Typed rejections for registry transitions.
var (
	ErrAlreadyRegistered = dErrors.New(dErrors.CodeConflict, "account already registered")
	ErrNotRegistered     = dErrors.New(dErrors.CodeNotFound, "account not registered")
	ErrNullifierTaken    = dErrors.New(dErrors.CodeConflict, "nullifier already bound")
)

// Store owns both halves of the bijective map. Implementations must apply
// each mutation atomically: both directions written together, or neither.
type Store interface {
	NullifierOf(ctx context.Context, account id.Account) (id.Nullifier, error)
	AccountOf(ctx context.Context, nullifier id.Nullifier) (id.Account, error)
	Bind(ctx context.Context, account id.Account, nullifier id.Nullifier) error
	Rebind(ctx context.Context, account id.Account, newNullifier id.Nullifier) (id.Nullifier, error)
	Unbind(ctx context.Context, account id.Account) (id.Nullifier, error)
}

// VerifyFunc checks proof of key ownership over (account, nullifier).
type VerifyFunc func(account id.Account, nullifier id.Nullifier, sig []byte) error

type Service struct {
	store   Store
	access  *access.Controller
	events  *events.Publisher
	verify  VerifyFunc
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEvents(publisher *events.Publisher) Option {
	return func(s *Service) {
		s.events = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithVerifier replaces the signature check; tests stub it out.
func WithVerifier(verify VerifyFunc) Option {
	return func(s *Service) {
		s.verify = verify
	}
}

func New(store Store, ctrl *access.Controller, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("registry store is required")
	}
	if ctrl == nil {
		return nil, errors.New("access controller is required")
	}
	svc := &Service{
		store:  store,
		access: ctrl,
		verify: verifier.Verify,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register binds caller to nullifier after proof of key ownership.
func (s *Service) Register(ctx context.Context, caller id.Account, nullifier id.Nullifier, sig []byte) error {
	if err := s.access.RequireActive(); err != nil {
		s.metrics.IncrementRejection("register", "paused")
		return err
	}
	if nullifier.IsZero() {
		s.metrics.IncrementRejection("register", "zero_nullifier")
		return dErrors.New(dErrors.CodeInvalidInput, "zero nullifier is reserved")
	}
	if err := s.verify(caller, nullifier, sig); err != nil {
		s.metrics.IncrementRejection("register", "bad_signature")
		return err
	}

	if err := s.store.Bind(ctx, caller, nullifier); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			s.metrics.IncrementRejection("register", "already_registered")
			return ErrAlreadyRegistered
		case errors.Is(err, sentinel.ErrTaken):
			s.metrics.IncrementRejection("register", "nullifier_taken")
			return ErrNullifierTaken
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to bind nullifier")
		}
	}

	s.metrics.IncrementTransition("register")
	s.metrics.AddRegistered(1)
	s.logger.InfoContext(ctx, "account registered",
		"request_id", requestcontext.RequestID(ctx),
		"account", caller,
	)
	s.emit(ctx, events.Event{
		Type:      events.TypeUserRegistered,
		Account:   caller,
		Nullifier: nullifier,
	})
	return nil
}

// Logout removes the caller's binding. The balance record, if any, stays on
// the books untouched.
func (s *Service) Logout(ctx context.Context, caller id.Account) error {
	if err := s.access.RequireActive(); err != nil {
		s.metrics.IncrementRejection("logout", "paused")
		return err
	}

	old, err := s.store.Unbind(ctx, caller)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementRejection("logout", "not_registered")
			return ErrNotRegistered
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to unbind nullifier")
	}

	s.metrics.IncrementTransition("logout")
	s.metrics.AddRegistered(-1)
	s.logger.InfoContext(ctx, "account logged out",
		"request_id", requestcontext.RequestID(ctx),
		"account", caller,
	)
	s.emit(ctx, events.Event{
		Type:          events.TypeUserLoggedOut,
		Account:       caller,
		PrevNullifier: old,
	})
	return nil
}

// ReLogin rotates the caller's nullifier in one step; the caller stays
// registered throughout, with no observable unregistered window.
func (s *Service) ReLogin(ctx context.Context, caller id.Account, newNullifier id.Nullifier, sig []byte) error {
	if err := s.access.RequireActive(); err != nil {
		s.metrics.IncrementRejection("relogin", "paused")
		return err
	}
	if newNullifier.IsZero() {
		s.metrics.IncrementRejection("relogin", "zero_nullifier")
		return dErrors.New(dErrors.CodeInvalidInput, "zero nullifier is reserved")
	}
	if err := s.verify(caller, newNullifier, sig); err != nil {
		s.metrics.IncrementRejection("relogin", "bad_signature")
		return err
	}

	old, err := s.store.Rebind(ctx, caller, newNullifier)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			s.metrics.IncrementRejection("relogin", "not_registered")
			return ErrNotRegistered
		case errors.Is(err, sentinel.ErrTaken):
			s.metrics.IncrementRejection("relogin", "nullifier_taken")
			return ErrNullifierTaken
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to rebind nullifier")
		}
	}

	s.metrics.IncrementTransition("relogin")
	s.logger.InfoContext(ctx, "nullifier rotated",
		"request_id", requestcontext.RequestID(ctx),
		"account", caller,
	)
	s.emit(ctx, events.Event{
		Type:          events.TypeUserReLoggedIn,
		Account:       caller,
		PrevNullifier: old,
		Nullifier:     newNullifier,
	})
	return nil
}

// AdminRecover rebinds a registered account's nullifier on the administrator's
// authority alone. This is the deliberate escape hatch for holders who can no
// longer produce a signature.
func (s *Service) AdminRecover(ctx context.Context, actor, account id.Account, newNullifier id.Nullifier) error {
	if err := s.access.RequireAdmin(actor); err != nil {
		s.metrics.IncrementRejection("admin_recover", "not_authorized")
		return err
	}
	if err := s.access.RequireActive(); err != nil {
		s.metrics.IncrementRejection("admin_recover", "paused")
		return err
	}
	if newNullifier.IsZero() {
		s.metrics.IncrementRejection("admin_recover", "zero_nullifier")
		return dErrors.New(dErrors.CodeInvalidInput, "zero nullifier is reserved")
	}

	old, err := s.store.Rebind(ctx, account, newNullifier)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			s.metrics.IncrementRejection("admin_recover", "not_registered")
			return ErrNotRegistered
		case errors.Is(err, sentinel.ErrTaken):
			s.metrics.IncrementRejection("admin_recover", "nullifier_taken")
			return ErrNullifierTaken
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to rebind nullifier")
		}
	}

	s.metrics.IncrementTransition("admin_recover")
	s.logger.InfoContext(ctx, "nullifier recovered by administrator",
		"request_id", requestcontext.RequestID(ctx),
		"account", account,
		"actor", actor,
	)
	s.emit(ctx, events.Event{
		Type:          events.TypeLostNullifierRecovered,
		Account:       account,
		PrevNullifier: old,
		Nullifier:     newNullifier,
		ActorID:       actor.Hex(),
	})
	return nil
}

// CurrentNullifier returns the caller's own binding. Reads are not gated by
// the pause flag.
func (s *Service) CurrentNullifier(ctx context.Context, caller id.Account) (id.Nullifier, error) {
	n, err := s.store.NullifierOf(ctx, caller)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.Nullifier{}, ErrNotRegistered
		}
		return id.Nullifier{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up nullifier")
	}
	return n, nil
}

// IsRegistered reports whether account currently holds a binding. The ledger
// consults this before any balance mutation.
func (s *Service) IsRegistered(ctx context.Context, account id.Account) (bool, error) {
	_, err := s.store.NullifierOf(ctx, account)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return false, nil
	default:
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up nullifier")
	}
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	s.events.Emit(ctx, event)
}
