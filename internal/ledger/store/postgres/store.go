// Package postgres backs the token ledger with a balances table and a single
// issuance row that carries the running total and the global cap. Mint and
// transfer each run in one transaction with the issuance or sender row locked,
// so the cap and balance checks cannot race their updates.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	id "nymreg/pkg/domain"
	"nymreg/pkg/platform/sentinel"
)

const Schema = `
CREATE TABLE IF NOT EXISTS ledger_balances (
    account    TEXT PRIMARY KEY,
    balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_issuance (
    singleton    BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
    total_issued BIGINT NOT NULL DEFAULT 0 CHECK (total_issued >= 0),
    global_cap   BIGINT NOT NULL,
    CHECK (total_issued <= global_cap)
);
`

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema applies the tables and seeds the issuance row with globalCap.
// The cap of an existing row is updated in place; the running total is never
// touched.
func (s *Store) EnsureSchema(ctx context.Context, globalCap uint64) error {
	if globalCap > math.MaxInt64 {
		return fmt.Errorf("global cap %d does not fit BIGINT", globalCap)
	}
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_issuance (singleton, global_cap) VALUES (TRUE, $1)
		 ON CONFLICT (singleton) DO UPDATE SET global_cap = EXCLUDED.global_cap`,
		int64(globalCap),
	); err != nil {
		return fmt.Errorf("seed issuance row: %w", err)
	}
	return nil
}

func (s *Store) Balance(ctx context.Context, account id.Account) (uint64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM ledger_balances WHERE account = $1`, account.Hex(),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return uint64(balance), nil
}

func (s *Store) TotalIssued(ctx context.Context) (uint64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT total_issued FROM ledger_issuance WHERE singleton`,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query issuance total: %w", err)
	}
	return uint64(total), nil
}

// Mint credits account and advances the running total, rejecting any amount
// that would push the total past the cap. Returns the new total.
func (s *Store) Mint(ctx context.Context, account id.Account, amount uint64) (uint64, error) {
	// Amounts past the BIGINT range would flip sign on conversion and can
	// never clear the cap anyway.
	if amount > math.MaxInt64 {
		return 0, sentinel.ErrCapExceeded
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin mint: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total, globalCap int64
	if err := tx.QueryRowContext(ctx,
		`SELECT total_issued, global_cap FROM ledger_issuance WHERE singleton FOR UPDATE`,
	).Scan(&total, &globalCap); err != nil {
		return 0, fmt.Errorf("lock issuance row: %w", err)
	}
	if int64(amount) > globalCap-total {
		return 0, sentinel.ErrCapExceeded
	}
	newTotal := total + int64(amount)

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_issuance SET total_issued = $1 WHERE singleton`, newTotal,
	); err != nil {
		return 0, fmt.Errorf("update issuance total: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_balances (account, balance) VALUES ($1, $2)
		 ON CONFLICT (account) DO UPDATE
		 SET balance = ledger_balances.balance + EXCLUDED.balance, updated_at = now()`,
		account.Hex(), int64(amount),
	); err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit mint: %w", err)
	}
	return uint64(newTotal), nil
}

// Transfer debits from and credits to in one transaction. The sender's row is
// locked first; a missing or short sender row rejects the whole transfer.
func (s *Store) Transfer(ctx context.Context, from, to id.Account, amount uint64) error {
	// Converting an amount past the BIGINT range would turn the debit into a
	// credit; no balance can cover it regardless.
	if amount > math.MaxInt64 {
		return sentinel.ErrInsufficient
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM ledger_balances WHERE account = $1 FOR UPDATE`, from.Hex(),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrInsufficient
	}
	if err != nil {
		return fmt.Errorf("lock sender balance: %w", err)
	}
	if balance < int64(amount) {
		return sentinel.ErrInsufficient
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_balances SET balance = balance - $2, updated_at = now() WHERE account = $1`,
		from.Hex(), int64(amount),
	); err != nil {
		return fmt.Errorf("debit sender: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_balances (account, balance) VALUES ($1, $2)
		 ON CONFLICT (account) DO UPDATE
		 SET balance = ledger_balances.balance + EXCLUDED.balance, updated_at = now()`,
		to.Hex(), int64(amount),
	); err != nil {
		return fmt.Errorf("credit recipient: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}
