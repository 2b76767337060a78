package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const walletColumns = `user_id, balance, pending_hold, version, updated_at, COALESCE(last_transaction_id, '')`

// PostgresStore persists wallets in PostgreSQL. Every mutation is a single
// conditional UPDATE so concurrent writers are linearized by the row lock.
type PostgresStore struct {
	db       *pgxpool.Pool
	starting decimal.Decimal
}

// NewPostgresStore constructs a Postgres-backed ledger store. New wallets are
// provisioned with startingBalance.
func NewPostgresStore(db *pgxpool.Pool, startingBalance decimal.Decimal) *PostgresStore {
	return &PostgresStore{db: db, starting: startingBalance}
}

// GetWallet returns the wallet for userID, creating it when absent.
func (s *PostgresStore) GetWallet(ctx context.Context, userID string) (Wallet, error) {
	if err := s.ensureWallet(ctx, userID); err != nil {
		return Wallet{}, err
	}
	return scanWallet(s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

// ApplyDelta records the apply key and updates the wallet inside one database
// transaction. The UPDATE only matches when the version is unchanged and the
// resulting available balance is non-negative.
func (s *PostgresStore) ApplyDelta(ctx context.Context, delta Delta) (Wallet, error) {
	if err := delta.validate(); err != nil {
		return Wallet{}, err
	}
	if err := s.ensureWallet(ctx, delta.UserID); err != nil {
		return Wallet{}, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Wallet{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `INSERT INTO applied_deltas (user_id, apply_key, amount, applied_at)
        VALUES ($1, $2, $3, now()) ON CONFLICT (user_id, apply_key) DO NOTHING`,
		delta.UserID, delta.ApplyKey, delta.Amount)
	if err != nil {
		return Wallet{}, fmt.Errorf("record apply key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, err := scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, delta.UserID))
		if err != nil {
			return Wallet{}, err
		}
		return current, ErrDuplicateTransaction
	}

	const update = `
        UPDATE wallets
        SET balance = balance + $2,
            pending_hold = pending_hold - $3,
            version = version + 1,
            updated_at = now(),
            last_transaction_id = $4
        WHERE user_id = $1
          AND version = $5
          AND pending_hold - $3 >= 0
          AND balance + $2 - (pending_hold - $3) >= 0
        RETURNING ` + walletColumns

	w, err := scanWallet(tx.QueryRow(ctx, update, delta.UserID, delta.Amount, delta.ReleaseHold, delta.ApplyKey, delta.ExpectedVersion))
	if errors.Is(err, ErrWalletNotFound) {
		current, readErr := scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, delta.UserID))
		if readErr != nil {
			return Wallet{}, readErr
		}
		if current.Version != delta.ExpectedVersion {
			return current, ErrConflict
		}
		_, _, settleErr := settle(current, delta)
		if settleErr == nil {
			// Row changed between UPDATE and SELECT; report as a conflict.
			settleErr = ErrConflict
		}
		return current, settleErr
	}
	if err != nil {
		return Wallet{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Reserve increments pending_hold when the available balance covers amount.
func (s *PostgresStore) Reserve(ctx context.Context, userID string, amount decimal.Decimal) (Wallet, error) {
	if !amount.IsPositive() {
		return Wallet{}, ErrInvalidAmount
	}
	if err := s.ensureWallet(ctx, userID); err != nil {
		return Wallet{}, err
	}
	const query = `
        UPDATE wallets
        SET pending_hold = pending_hold + $2, version = version + 1, updated_at = now()
        WHERE user_id = $1 AND balance - pending_hold >= $2
        RETURNING ` + walletColumns
	w, err := scanWallet(s.db.QueryRow(ctx, query, userID, amount))
	if errors.Is(err, ErrWalletNotFound) {
		current, readErr := s.GetWallet(ctx, userID)
		if readErr != nil {
			return Wallet{}, readErr
		}
		return current, ErrInsufficientFunds
	}
	return w, err
}

// Applied reports whether applyKey is recorded for userID.
func (s *PostgresStore) Applied(ctx context.Context, userID, applyKey string) (bool, error) {
	var applied bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM applied_deltas WHERE user_id = $1 AND apply_key = $2)`,
		userID, applyKey).Scan(&applied)
	return applied, err
}

// Unreserve decrements pending_hold.
func (s *PostgresStore) Unreserve(ctx context.Context, userID string, amount decimal.Decimal) (Wallet, error) {
	if !amount.IsPositive() {
		return Wallet{}, ErrInvalidAmount
	}
	const query = `
        UPDATE wallets
        SET pending_hold = pending_hold - $2, version = version + 1, updated_at = now()
        WHERE user_id = $1 AND pending_hold >= $2
        RETURNING ` + walletColumns
	w, err := scanWallet(s.db.QueryRow(ctx, query, userID, amount))
	if errors.Is(err, ErrWalletNotFound) {
		return Wallet{}, ErrInvalidAmount
	}
	return w, err
}

func (s *PostgresStore) ensureWallet(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO wallets (user_id, balance, pending_hold, version, updated_at)
        VALUES ($1, $2, 0, 0, now()) ON CONFLICT (user_id) DO NOTHING`, userID, s.starting)
	if err != nil {
		return fmt.Errorf("provision wallet %s: %w", userID, err)
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	if err := row.Scan(&w.UserID, &w.Balance, &w.PendingHold, &w.Version, &w.LastUpdated, &w.LastTransactionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.LastUpdated = w.LastUpdated.UTC()
	return w, nil
}
