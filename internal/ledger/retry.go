package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultConflictRetries bounds how many times Apply re-reads a wallet after a
// version conflict before giving up with ErrConflict.
const DefaultConflictRetries = 5

// RetryPolicy controls Apply's conflict retry loop.
type RetryPolicy struct {
	MaxRetries   uint64
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy is tuned for in-process contention on a single wallet row.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   DefaultConflictRetries,
		InitialDelay: 2 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialDelay
	exp.MaxInterval = p.MaxDelay
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, p.MaxRetries), ctx)
}

// Apply reads the wallet, builds a delta against the version it saw and
// applies it. ErrConflict triggers a fresh read and another attempt; every
// other error is returned immediately. A duplicate apply key is reported as
// ErrDuplicateTransaction together with the current wallet.
func Apply(ctx context.Context, store Store, userID string, policy RetryPolicy, build func(Wallet) Delta) (Wallet, error) {
	op := func() (Wallet, error) {
		w, err := store.GetWallet(ctx, userID)
		if err != nil {
			return Wallet{}, backoff.Permanent(err)
		}
		delta := build(w)
		delta.UserID = userID
		delta.ExpectedVersion = w.Version

		updated, err := store.ApplyDelta(ctx, delta)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, ErrConflict) {
			return updated, err
		}
		return updated, backoff.Permanent(err)
	}
	return backoff.RetryWithData(op, policy.backOff(ctx))
}
