package events

import (
	"context"
	"log/slog"

	id "nymreg/pkg/domain"
	"nymreg/pkg/requestcontext"
)

// Publisher records notifications. Persistence goes through the store
// synchronously; out-of-process delivery is handed to a bounded inbox drained
// by a worker so a slow broker can never fail or stall an operation.
type Publisher struct {
	store  Store
	inbox  chan<- Event
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithInbox attaches the worker channel that forwards events to a sink.
func WithInbox(inbox chan<- Event) Option {
	return func(p *Publisher) {
		p.inbox = inbox
	}
}

func New(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps and persists the event. Delivery failures are logged, never
// propagated: notifications must not undo an already-committed operation.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "event append failed",
			"type", event.Type,
			"account", event.Account,
			"error", err,
		)
	}
	if p.inbox == nil {
		return
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "event inbox full, dropping delivery",
			"type", event.Type,
			"account", event.Account,
		)
	}
}

// ListByAccount returns the persisted events for one account.
func (p *Publisher) ListByAccount(ctx context.Context, account id.Account) ([]Event, error) {
	return p.store.ListByAccount(ctx, account)
}

// ListRecent returns the most recent persisted events, oldest first.
func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	return p.store.ListRecent(ctx, limit)
}
