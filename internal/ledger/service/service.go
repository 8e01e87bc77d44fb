// Package service implements the capped token ledger: self-issuance up to a
// per-operation cap and a global issuance ceiling, and transfers between
// registered accounts.
//
// Mutations are fail-closed. Every precondition — pause flag, registration of
// the parties, amount bounds, caller re-entry — is checked before the store is
// touched, and the store itself enforces the cap and balance arithmetic
// atomically.
package service

import (
	"context"
	"errors"
	"log/slog"

	"nymreg/internal/access"
	"nymreg/internal/events"
	"nymreg/internal/ledger/metrics"
	id "nymreg/pkg/domain"
	dErrors "nymreg/pkg/domain-errors"
	"nymreg/pkg/platform/sentinel"
	"nymreg/pkg/requestcontext"
)

// DefaultPerOpCap bounds a single mint when no cap is configured.
const DefaultPerOpCap uint64 = 1000

// Typed rejections for ledger operations.
var (
	ErrZeroAmount             = dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	ErrExceedsPerOpCap        = dErrors.New(dErrors.CodeInvalidInput, "amount exceeds per-operation cap")
	ErrExceedsGlobalCap       = dErrors.New(dErrors.CodeFailedPrecondition, "issuance would exceed global cap")
	ErrInsufficientBalance    = dErrors.New(dErrors.CodeFailedPrecondition, "insufficient balance")
	ErrNotRegistered          = dErrors.New(dErrors.CodeNotFound, "account not registered")
	ErrRecipientNotRegistered = dErrors.New(dErrors.CodeFailedPrecondition, "recipient not registered")
	ErrOperationInProgress    = dErrors.New(dErrors.CodeConflict, "another operation is in progress for this account")
)

// Store holds balances and the running issuance total. Mint must check the
// global cap and apply credit and total in one atomic step; Transfer must
// debit and credit atomically.
type Store interface {
	Balance(ctx context.Context, account id.Account) (uint64, error)
	TotalIssued(ctx context.Context) (uint64, error)
	Mint(ctx context.Context, account id.Account, amount uint64) (uint64, error)
	Transfer(ctx context.Context, from, to id.Account, amount uint64) error
}

// Registry answers whether an account currently holds a session binding.
type Registry interface {
	IsRegistered(ctx context.Context, account id.Account) (bool, error)
}

type Service struct {
	store    Store
	registry Registry
	access   *access.Controller
	guard    *inProgressGuard
	events   *events.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	perOpCap uint64
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

// WithPerOpCap overrides the single-mint ceiling.
func WithPerOpCap(limit uint64) Option {
	return func(s *Service) {
		s.perOpCap = limit
	}
}

func New(store Store, registry Registry, ctrl *access.Controller, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if ctrl == nil {
		return nil, errors.New("access controller is required")
	}
	svc := &Service{
		store:    store,
		registry: registry,
		access:   ctrl,
		guard:    newInProgressGuard(),
		logger:   slog.Default(),
		perOpCap: DefaultPerOpCap,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Mint credits the caller with freshly issued tokens, bounded by the
// per-operation cap and the global issuance ceiling.
func (s *Service) Mint(ctx context.Context, caller id.Account, amount uint64) error {
	if !s.guard.enter(caller) {
		s.metrics.IncrementRejection("mint", "in_progress")
		return ErrOperationInProgress
	}
	defer s.guard.exit(caller)

	if err := s.access.RequireActive(); err != nil {
		s.metrics.IncrementRejection("mint", "paused")
		return err
	}
	if err := s.requireRegistered(ctx, caller, ErrNotRegistered); err != nil {
		s.metrics.IncrementRejection("mint", "not_registered")
		return err
	}
	if amount == 0 {
		s.metrics.IncrementRejection("mint", "zero_amount")
		return ErrZeroAmount
	}
	if amount > s.perOpCap {
		s.metrics.IncrementRejection("mint", "per_op_cap")
		return ErrExceedsPerOpCap
	}

	total, err := s.store.Mint(ctx, caller, amount)
	if err != nil {
		if errors.Is(err, sentinel.ErrCapExceeded) {
			s.metrics.IncrementRejection("mint", "global_cap")
			return ErrExceedsGlobalCap
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint tokens")
	}

	s.metrics.IncrementMints()
	s.metrics.SetTotalIssued(total)
	s.logger.InfoContext(ctx, "tokens minted",
		"request_id", requestcontext.RequestID(ctx),
		"account", caller,
		"amount", amount,
		"total_issued", total,
	)
	s.emit(ctx, events.Event{
		Type:    events.TypeTokensMinted,
		Account: caller,
		Amount:  amount,
	})
	return nil
}

// Transfer moves tokens from the caller to another registered account.
func (s *Service) Transfer(ctx context.Context, caller, to id.Account, amount uint64) error {
	if !s.guard.enter(caller) {
		s.metrics.IncrementRejection("transfer", "in_progress")
		return ErrOperationInProgress
	}
	defer s.guard.exit(caller)

	if err := s.access.RequireActive(); err != nil {
		s.metrics.IncrementRejection("transfer", "paused")
		return err
	}
	if err := s.requireRegistered(ctx, caller, ErrNotRegistered); err != nil {
		s.metrics.IncrementRejection("transfer", "not_registered")
		return err
	}
	if err := s.requireRegistered(ctx, to, ErrRecipientNotRegistered); err != nil {
		s.metrics.IncrementRejection("transfer", "recipient_not_registered")
		return err
	}
	if amount == 0 {
		s.metrics.IncrementRejection("transfer", "zero_amount")
		return ErrZeroAmount
	}

	if err := s.store.Transfer(ctx, caller, to, amount); err != nil {
		if errors.Is(err, sentinel.ErrInsufficient) {
			s.metrics.IncrementRejection("transfer", "insufficient_balance")
			return ErrInsufficientBalance
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer tokens")
	}

	s.metrics.IncrementTransfers()
	s.logger.InfoContext(ctx, "tokens transferred",
		"request_id", requestcontext.RequestID(ctx),
		"from", caller,
		"to", to,
		"amount", amount,
	)
	s.emit(ctx, events.Event{
		Type:         events.TypeTokensTransferred,
		Account:      caller,
		Counterparty: to,
		Amount:       amount,
	})
	return nil
}

// BalanceOf returns the caller's balance. Reads are not gated by the pause
// flag, but the caller must be registered.
func (s *Service) BalanceOf(ctx context.Context, caller id.Account) (uint64, error) {
	if err := s.requireRegistered(ctx, caller, ErrNotRegistered); err != nil {
		return 0, err
	}
	bal, err := s.store.Balance(ctx, caller)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up balance")
	}
	return bal, nil
}

// TotalIssued returns the running issuance total.
func (s *Service) TotalIssued(ctx context.Context) (uint64, error) {
	total, err := s.store.TotalIssued(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up issuance total")
	}
	return total, nil
}

func (s *Service) requireRegistered(ctx context.Context, account id.Account, reject error) error {
	ok, err := s.registry.IsRegistered(ctx, account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check registration")
	}
	if !ok {
		return reject
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	s.events.Emit(ctx, event)
}
