package savings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet-ledger/internal/fee"
	"github.com/congo-pay/wallet-ledger/internal/ledger"
	"github.com/congo-pay/wallet-ledger/internal/transaction"
)

// Wallets moves funds between the wallet and savings locks.
type Wallets interface {
	DebitInternal(ctx context.Context, in transaction.InternalInput) (transaction.Transaction, error)
	CreditInternal(ctx context.Context, in transaction.InternalInput) (transaction.Transaction, error)
	Get(ctx context.Context, id string) (transaction.Transaction, error)
}

// Quote is the outcome of withdrawing a lock at a point in time.
type Quote struct {
	LockID       string
	AsOf         time.Time
	Early        bool
	AccruedValue decimal.Decimal
	Penalty      decimal.Decimal
	Payout       decimal.Decimal
}

// Engine creates and withdraws savings locks.
type Engine struct {
	repo    Repository
	wallets Wallets
	fees    fee.Policy
	tiers   map[int]decimal.Decimal
	house   string
	logger  *slog.Logger
	now     func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHouseAccount overrides the wallet that receives early-withdrawal
// penalties.
func WithHouseAccount(userID string) Option {
	return func(e *Engine) { e.house = userID }
}

// WithTiers replaces the rate card.
func WithTiers(tiers []Tier) Option {
	return func(e *Engine) {
		e.tiers = make(map[int]decimal.Decimal, len(tiers))
		for _, t := range tiers {
			e.tiers[t.DurationMonths] = t.Rate
		}
	}
}

// NewEngine constructs a savings engine on top of the orchestrator's internal
// wallet movements.
func NewEngine(repo Repository, wallets Wallets, fees fee.Policy, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:    repo,
		wallets: wallets,
		fees:    fees,
		house:   transaction.DefaultHouseUserID,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	WithTiers(DefaultTiers)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateLockInput requests a new savings lock.
type CreateLockInput struct {
	ID             string
	UserID         string
	Amount         decimal.Decimal
	DurationMonths int
}

// CreateLock debits amount from the wallet and locks it for the duration at
// the tier's rate. Resubmitting the same id returns the existing lock. A lock
// whose funding debit failed or was refunded is never created under that id.
func (e *Engine) CreateLock(ctx context.Context, in CreateLockInput) (Lock, error) {
	if !in.Amount.IsPositive() || !in.Amount.Equal(in.Amount.Round(2)) {
		return Lock{}, &transaction.ValidationError{Field: "amount", Reason: "must be a positive amount with at most two decimal places"}
	}
	rate, ok := e.tiers[in.DurationMonths]
	if !ok {
		return Lock{}, &transaction.ValidationError{Field: "duration_months", Reason: "no savings tier for this duration"}
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if existing, err := e.repo.Get(ctx, in.ID); err == nil {
		if existing.UserID != in.UserID || !existing.LockedAmount.Equal(in.Amount) || existing.DurationMonths != in.DurationMonths {
			return Lock{}, &transaction.ValidationError{Field: "id", Reason: "already used for a different lock"}
		}
		return existing, nil
	} else if !errors.Is(err, ErrLockNotFound) {
		return Lock{}, err
	}

	funding, err := e.wallets.DebitInternal(ctx, transaction.InternalInput{
		ID:     fundingID(in.ID),
		UserID: in.UserID,
		Amount: in.Amount,
	})
	if err != nil {
		return Lock{}, err
	}
	if err := fundingLanded(funding); err != nil {
		return Lock{}, err
	}
	if refund, err := e.wallets.Get(ctx, refundID(in.ID)); err == nil && refund.Status != transaction.StatusFailed {
		return Lock{}, fmt.Errorf("%w: lock %s was refunded", ErrFundingFailed, in.ID)
	} else if err != nil && !errors.Is(err, transaction.ErrNotFound) {
		return Lock{}, err
	}

	now := e.now()
	l := Lock{
		ID:                         in.ID,
		UserID:                     in.UserID,
		LockedAmount:               in.Amount,
		DurationMonths:             in.DurationMonths,
		InterestRate:               rate,
		EarlyWithdrawalPenaltyRate: e.fees.EarlyWithdrawalRate,
		FundingTransactionID:       funding.ID,
		Status:                     StatusActive,
		LockedAt:                   now,
		MaturesAt:                  now.AddDate(0, in.DurationMonths, 0),
	}
	if err := e.repo.Create(ctx, l); err != nil {
		if errors.Is(err, ErrDuplicateLock) {
			// A concurrent call with the same id stored the lock first; the
			// funding debit is shared with it.
			existing, getErr := e.repo.Get(ctx, in.ID)
			if getErr != nil {
				return Lock{}, getErr
			}
			return existing, nil
		}
		if _, refundErr := e.wallets.CreditInternal(ctx, transaction.InternalInput{
			ID:     refundID(in.ID),
			UserID: in.UserID,
			Amount: in.Amount,
		}); refundErr != nil {
			e.logger.Error("refund savings funding",
				slog.String("lock_id", in.ID),
				slog.String("user_id", in.UserID),
				slog.Any("error", refundErr))
		}
		return Lock{}, err
	}

	e.logger.Info("savings lock created",
		slog.String("lock_id", l.ID),
		slog.String("user_id", l.UserID),
		slog.String("amount", l.LockedAmount.String()),
		slog.Int("duration_months", l.DurationMonths))
	return l, nil
}

// Get returns the user's lock by id.
func (e *Engine) Get(ctx context.Context, userID, lockID string) (Lock, error) {
	l, err := e.repo.Get(ctx, lockID)
	if err != nil {
		return Lock{}, err
	}
	if l.UserID != userID {
		return Lock{}, ErrLockNotFound
	}
	l.Status = l.StatusAt(e.now())
	return l, nil
}

// List returns the user's locks, newest first.
func (e *Engine) List(ctx context.Context, userID string) ([]Lock, error) {
	locks, err := e.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	for i := range locks {
		locks[i].Status = locks[i].StatusAt(now)
	}
	return locks, nil
}

// Quote computes what withdrawing the lock now would pay, without side
// effects.
func (e *Engine) Quote(ctx context.Context, userID, lockID string) (Quote, error) {
	l, err := e.Get(ctx, userID, lockID)
	if err != nil {
		return Quote{}, err
	}
	return e.quote(l, e.now())
}

func (e *Engine) quote(l Lock, now time.Time) (Quote, error) {
	q := Quote{LockID: l.ID, AsOf: now, Penalty: decimal.Zero}
	if l.Matured(now) {
		q.AccruedValue = l.AccruedValue(l.MaturesAt)
		q.Payout = q.AccruedValue
		return q, nil
	}
	penalty, err := fee.Policy{EarlyWithdrawalRate: l.EarlyWithdrawalPenaltyRate}.Compute(fee.KindEarlyWithdrawal, l.LockedAmount)
	if err != nil {
		return Quote{}, err
	}
	q.Early = true
	q.AccruedValue = l.AccruedValue(now)
	q.Penalty = penalty
	q.Payout = q.AccruedValue.Sub(penalty)
	if q.Payout.IsNegative() {
		q.Payout = decimal.Zero
	}
	return q, nil
}

// Withdraw returns the lock's value to the wallet. Before maturity the
// payout is the accrued value minus the penalty on principal, and the
// penalty goes to the house account. Withdrawing an already withdrawn lock
// re-drives its payout and returns it.
func (e *Engine) Withdraw(ctx context.Context, userID, lockID string) (Lock, error) {
	l, err := e.repo.Get(ctx, lockID)
	if err != nil {
		return Lock{}, err
	}
	if l.UserID != userID {
		return Lock{}, ErrLockNotFound
	}

	if l.Status == StatusActive {
		now := e.now()
		q, err := e.quote(l, now)
		if err != nil {
			return Lock{}, err
		}
		l.PayoutTransactionID = payoutID(l.ID)
		l.PayoutAmount = q.Payout
		l.PenaltyAmount = q.Penalty
		l.WithdrawnAt = &now
		l, err = e.repo.MarkWithdrawn(ctx, l)
		if err != nil && !errors.Is(err, ErrAlreadyWithdrawn) {
			return Lock{}, err
		}
	}
	if err := e.payOut(ctx, l); err != nil {
		return l, err
	}
	return l, nil
}

// payOut credits the recorded payout and penalty. Both credits are keyed by
// the lock id, so repeating them is harmless.
func (e *Engine) payOut(ctx context.Context, l Lock) error {
	if l.PayoutAmount.IsPositive() {
		if _, err := e.wallets.CreditInternal(ctx, transaction.InternalInput{
			ID:     l.PayoutTransactionID,
			UserID: l.UserID,
			Amount: l.PayoutAmount,
		}); err != nil {
			return err
		}
	}
	if l.PenaltyAmount.IsPositive() {
		if _, err := e.wallets.CreditInternal(ctx, transaction.InternalInput{
			ID:     penaltyID(l.ID),
			UserID: e.house,
			Amount: l.PenaltyAmount,
		}); err != nil {
			e.logger.Error("credit savings penalty",
				slog.String("lock_id", l.ID),
				slog.String("penalty", l.PenaltyAmount.String()),
				slog.Any("error", err))
		}
	}
	e.logger.Info("savings lock withdrawn",
		slog.String("lock_id", l.ID),
		slog.String("user_id", l.UserID),
		slog.String("payout", l.PayoutAmount.String()),
		slog.String("penalty", l.PenaltyAmount.String()))
	return nil
}

// fundingLanded maps a funding debit that did not complete to an error. A
// resubmitted id hands back the stored debit, which may have failed earlier.
func fundingLanded(funding transaction.Transaction) error {
	switch funding.Status {
	case transaction.StatusCompleted:
		return nil
	case transaction.StatusFailed:
		switch funding.FailureReason {
		case transaction.ReasonInsufficientFunds:
			return ledger.ErrInsufficientFunds
		case transaction.ReasonConflict:
			return ledger.ErrConflict
		}
		return fmt.Errorf("%w: %s", ErrFundingFailed, funding.FailureReason)
	default:
		return fmt.Errorf("funding %s is %s: %w", funding.ID, funding.Status, ledger.ErrConflict)
	}
}

func fundingID(lockID string) string { return lockID + ":fund" }
func refundID(lockID string) string  { return lockID + ":refund" }
func payoutID(lockID string) string  { return lockID + ":payout" }
func penaltyID(lockID string) string { return lockID + ":penalty" }
