// Package events carries the notifications emitted by registry and ledger
// operations. Events are transport-agnostic so stores and sinks can fan out.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "nymreg/pkg/domain"
)

// Type names a notification. Values mirror the registry's public contract.
type Type string

const (
	TypeUserRegistered         Type = "user_registered"
	TypeUserLoggedOut          Type = "user_logged_out"
	TypeUserReLoggedIn         Type = "user_relogged_in"
	TypeLostNullifierRecovered Type = "lost_nullifier_recovered"
	TypeTokensMinted           Type = "tokens_minted"
	TypeTokensTransferred      Type = "tokens_transferred"
)

// Event is a single notification. Fields not relevant to a given type stay at
// their zero values.
type Event struct {
	Timestamp time.Time  `json:"timestamp"`
	Type      Type       `json:"type"`
	Account   id.Account `json:"account"`
	// Nullifier is the binding after the operation; PrevNullifier the binding
	// before a rotation.
	Nullifier     id.Nullifier `json:"nullifier,omitempty"`
	PrevNullifier id.Nullifier `json:"prev_nullifier,omitempty"`
	// Counterparty is the transfer recipient.
	Counterparty id.Account `json:"counterparty,omitempty"`
	Amount       uint64     `json:"amount,omitempty"`
	// ActorID records who triggered the operation when it was not the account
	// itself (administrator recovery).
	ActorID   string `json:"actor_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// OutboxRow pairs a stored event with its outbox id for delivery tracking.
type OutboxRow struct {
	ID    uuid.UUID
	Event Event
}

// Store persists emitted events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, account id.Account) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Sink receives events for out-of-process delivery (Kafka, etc).
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
