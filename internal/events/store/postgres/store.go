// Package postgres persists events through a transactional outbox table. The
// table is the hand-off point to the Kafka worker; rows keep a published_at
// marker so delivery survives a crash and is retried by the drainer.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"nymreg/internal/events"
	id "nymreg/pkg/domain"
)

// Schema creates the outbox table. Applied at startup; IF NOT EXISTS keeps it
// idempotent across restarts.
const Schema = `
CREATE TABLE IF NOT EXISTS event_outbox (
    id           UUID PRIMARY KEY,
    event_type   TEXT        NOT NULL,
    account      TEXT        NOT NULL,
    payload      JSONB       NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    published_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS event_outbox_account_idx ON event_outbox (account, created_at);
`

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema applies the outbox DDL.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply event outbox schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO event_outbox (id, event_type, account, payload) VALUES ($1, $2, $3, $4)`,
		uuid.New(), string(event.Type), event.Account.Hex(), payload,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) ListByAccount(ctx context.Context, account id.Account) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM event_outbox WHERE account = $1 ORDER BY created_at ASC`,
		account.Hex(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM (
		     SELECT payload, created_at FROM event_outbox ORDER BY created_at DESC LIMIT $1
		 ) t ORDER BY created_at ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListUnpublished returns undelivered rows, oldest first, for the outbox
// drainer.
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]events.OutboxRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM event_outbox WHERE published_at IS NULL ORDER BY created_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unpublished events: %w", err)
	}
	defer rows.Close()

	var out []events.OutboxRow
	for rows.Next() {
		var row events.OutboxRow
		var payload []byte
		if err := rows.Scan(&row.ID, &payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		if err := json.Unmarshal(payload, &row.Event); err != nil {
			return nil, fmt.Errorf("decode stored event: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// MarkPublished stamps delivered rows so the outbox drainer skips them.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE event_outbox SET published_at = now() WHERE id = ANY($1)`,
		pq.Array(uuidStrings(ids)),
	)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]events.Event, error) {
	var out []events.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e events.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode stored event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, u := range ids {
		out[i] = u.String()
	}
	return out
}
