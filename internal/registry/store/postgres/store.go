// Package postgres backs the bijective account↔nullifier map with a single
// table. Each mutation runs in one transaction; unique constraints on both
// columns are the database-level backstop for the bijection invariant.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	id "nymreg/pkg/domain"
	"nymreg/pkg/platform/sentinel"
)

const Schema = `
CREATE TABLE IF NOT EXISTS nullifier_bindings (
    account   TEXT PRIMARY KEY,
    nullifier TEXT NOT NULL,
    bound_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT nullifier_bindings_nullifier_key UNIQUE (nullifier)
);
`

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply bindings schema: %w", err)
	}
	return nil
}

func (s *Store) NullifierOf(ctx context.Context, account id.Account) (id.Nullifier, error) {
	var hex string
	err := s.db.QueryRowContext(ctx,
		`SELECT nullifier FROM nullifier_bindings WHERE account = $1`, account.Hex(),
	).Scan(&hex)
	if errors.Is(err, sql.ErrNoRows) {
		return id.Nullifier{}, sentinel.ErrNotFound
	}
	if err != nil {
		return id.Nullifier{}, fmt.Errorf("query binding: %w", err)
	}
	return parseStoredNullifier(hex)
}

func (s *Store) AccountOf(ctx context.Context, nullifier id.Nullifier) (id.Account, error) {
	var hex string
	err := s.db.QueryRowContext(ctx,
		`SELECT account FROM nullifier_bindings WHERE nullifier = $1`, nullifier.Hex(),
	).Scan(&hex)
	if errors.Is(err, sql.ErrNoRows) {
		return id.Account{}, sentinel.ErrNotFound
	}
	if err != nil {
		return id.Account{}, fmt.Errorf("query binding: %w", err)
	}
	return id.ParseAccount(hex)
}

func (s *Store) Bind(ctx context.Context, account id.Account, nullifier id.Nullifier) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nullifier_bindings (account, nullifier) VALUES ($1, $2)`,
		account.Hex(), nullifier.Hex(),
	)
	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			if constraint == "nullifier_bindings_nullifier_key" {
				return sentinel.ErrTaken
			}
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert binding: %w", err)
	}
	return nil
}

func (s *Store) Rebind(ctx context.Context, account id.Account, newNullifier id.Nullifier) (id.Nullifier, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return id.Nullifier{}, fmt.Errorf("begin rebind: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldHex string
	err = tx.QueryRowContext(ctx,
		`SELECT nullifier FROM nullifier_bindings WHERE account = $1 FOR UPDATE`, account.Hex(),
	).Scan(&oldHex)
	if errors.Is(err, sql.ErrNoRows) {
		return id.Nullifier{}, sentinel.ErrNotFound
	}
	if err != nil {
		return id.Nullifier{}, fmt.Errorf("lock binding: %w", err)
	}

	// "Not already bound" includes the caller's own current nullifier.
	var taken bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM nullifier_bindings WHERE nullifier = $1)`, newNullifier.Hex(),
	).Scan(&taken); err != nil {
		return id.Nullifier{}, fmt.Errorf("check nullifier: %w", err)
	}
	if taken {
		return id.Nullifier{}, sentinel.ErrTaken
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE nullifier_bindings SET nullifier = $2, bound_at = now() WHERE account = $1`,
		account.Hex(), newNullifier.Hex(),
	); err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return id.Nullifier{}, sentinel.ErrTaken
		}
		return id.Nullifier{}, fmt.Errorf("update binding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return id.Nullifier{}, fmt.Errorf("commit rebind: %w", err)
	}
	return parseStoredNullifier(oldHex)
}

func (s *Store) Unbind(ctx context.Context, account id.Account) (id.Nullifier, error) {
	var oldHex string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM nullifier_bindings WHERE account = $1 RETURNING nullifier`, account.Hex(),
	).Scan(&oldHex)
	if errors.Is(err, sql.ErrNoRows) {
		return id.Nullifier{}, sentinel.ErrNotFound
	}
	if err != nil {
		return id.Nullifier{}, fmt.Errorf("delete binding: %w", err)
	}
	return parseStoredNullifier(oldHex)
}

func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func parseStoredNullifier(hex string) (id.Nullifier, error) {
	n, err := id.ParseNullifier(hex)
	if err != nil {
		return id.Nullifier{}, fmt.Errorf("stored nullifier corrupt: %w", err)
	}
	return n, nil
}
