package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when a mutation would drive a wallet's
	// available balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict indicates the wallet version moved since the caller read it.
	// Callers retry with a freshly read version.
	ErrConflict = errors.New("wallet version conflict")

	// ErrDuplicateTransaction indicates the delta's apply key was already
	// applied to the wallet. The returned wallet reflects the current state and
	// the operation should be treated as idempotent success.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInvalidAmount rejects malformed deltas and hold adjustments.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrWalletNotFound is returned by stores that do not auto-provision.
	ErrWalletNotFound = errors.New("wallet not found")
)

// Wallet is the authoritative per-user balance record.
type Wallet struct {
	UserID            string
	Balance           decimal.Decimal
	PendingHold       decimal.Decimal
	Version           int64
	LastUpdated       time.Time
	LastTransactionID string
}

// Available is Balance minus the sum of active holds.
func (w Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.PendingHold)
}

// Delta is a single versioned balance mutation.
type Delta struct {
	UserID string
	// Amount is signed: negative debits, positive credits.
	Amount          decimal.Decimal
	ExpectedVersion int64
	// ApplyKey makes the mutation idempotent per wallet. It is the owning
	// transaction id, optionally suffixed with a leg name.
	ApplyKey string
	// ReleaseHold is subtracted from PendingHold in the same atomic step,
	// letting a captured hold fund its own debit.
	ReleaseHold decimal.Decimal
}

func (d Delta) validate() error {
	if d.UserID == "" || d.ApplyKey == "" {
		return ErrInvalidAmount
	}
	if d.ReleaseHold.IsNegative() {
		return ErrInvalidAmount
	}
	if d.Amount.IsZero() && d.ReleaseHold.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// Store owns Wallet mutation. ApplyDelta is the only way to change Balance;
// Reserve and Unreserve are the only ways to change PendingHold.
type Store interface {
	// GetWallet returns the wallet for userID, provisioning it with the
	// store's starting balance when absent.
	GetWallet(ctx context.Context, userID string) (Wallet, error)
	// ApplyDelta compares ExpectedVersion with the stored version and applies
	// the delta atomically, incrementing the version.
	ApplyDelta(ctx context.Context, delta Delta) (Wallet, error)
	// Reserve increments PendingHold if the available balance covers amount.
	Reserve(ctx context.Context, userID string, amount decimal.Decimal) (Wallet, error)
	// Unreserve decrements PendingHold.
	Unreserve(ctx context.Context, userID string, amount decimal.Decimal) (Wallet, error)
	// Applied reports whether a delta with applyKey already landed on the
	// wallet.
	Applied(ctx context.Context, userID, applyKey string) (bool, error)
}

// settle computes the post-mutation balance and pending hold for delta,
// enforcing the availableBalance >= 0 invariant.
func settle(w Wallet, delta Delta) (decimal.Decimal, decimal.Decimal, error) {
	pending := w.PendingHold.Sub(delta.ReleaseHold)
	if pending.IsNegative() {
		return decimal.Zero, decimal.Zero, ErrInvalidAmount
	}
	balance := w.Balance.Add(delta.Amount)
	if balance.Sub(pending).IsNegative() {
		return decimal.Zero, decimal.Zero, ErrInsufficientFunds
	}
	return balance, pending, nil
}
