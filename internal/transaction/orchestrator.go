package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet-ledger/internal/fee"
	"github.com/congo-pay/wallet-ledger/internal/hold"
	"github.com/congo-pay/wallet-ledger/internal/ledger"
	"github.com/congo-pay/wallet-ledger/internal/notification"
	"github.com/congo-pay/wallet-ledger/internal/processor"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	// DefaultHouseUserID is the wallet that collects fees and penalties.
	DefaultHouseUserID = "house"
)

// Settler is the settlement capability the orchestrator dispatches through.
type Settler interface {
	Select() processor.Network
	Settle(ctx context.Context, network processor.Network, req processor.Request) (processor.Result, error)
}

// Orchestrator drives deposits, withdrawals and transfers through their
// lifecycle. It is the only writer of transaction state.
type Orchestrator struct {
	repo     Repository
	ledger   ledger.Store
	holds    *hold.Manager
	settler  Settler
	fees     fee.Policy
	notifier notification.Notifier
	logger   *slog.Logger
	house    string
	retry    ledger.RetryPolicy
	sagaTry  uint64
	now      func() time.Time
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier sets the sink for terminal transaction events.
func WithNotifier(n notification.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithHouseAccount overrides the fee collection wallet.
func WithHouseAccount(userID string) Option {
	return func(o *Orchestrator) { o.house = userID }
}

// WithRetryPolicy overrides the version-conflict retry policy.
func WithRetryPolicy(p ledger.RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the orchestrator and registers it as the hold
// manager's expiry handler.
func NewOrchestrator(repo Repository, store ledger.Store, holds *hold.Manager, settler Settler, fees fee.Policy, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:    repo,
		ledger:  store,
		holds:   holds,
		settler: settler,
		fees:    fees,
		logger:  logger,
		house:   DefaultHouseUserID,
		retry:   ledger.DefaultRetryPolicy(),
		sagaTry: 3,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	holds.SetExpiryHandler(o)
	return o
}

// DepositInput requests funds pulled from an external method.
type DepositInput struct {
	ID        string
	UserID    string
	Amount    decimal.Decimal
	MethodRef string
}

// WithdrawInput requests funds pushed to an external method.
type WithdrawInput struct {
	ID        string
	UserID    string
	Amount    decimal.Decimal
	MethodRef string
}

// TransferInput requests an internal movement between two wallets.
type TransferInput struct {
	ID       string
	UserID   string
	ToUserID string
	Amount   decimal.Decimal
}

// InternalInput requests a zero-fee wallet movement on behalf of another
// component.
type InternalInput struct {
	ID     string
	UserID string
	Amount decimal.Decimal
}

// Deposit dispatches an inbound settlement and credits the wallet once the
// network confirms. Networks that confirm asynchronously leave the
// transaction processing until Resolve is called.
func (o *Orchestrator) Deposit(ctx context.Context, in DepositInput) (Transaction, error) {
	if err := validateAmount(in.Amount); err != nil {
		return Transaction{}, err
	}
	if strings.TrimSpace(in.MethodRef) == "" {
		return Transaction{}, &ValidationError{Field: "method_ref", Reason: "is required"}
	}
	feeAmount, err := o.fees.Compute(fee.KindDeposit, in.Amount)
	if err != nil {
		return Transaction{}, err
	}

	tx, created, err := o.begin(ctx, Transaction{
		ID:                in.ID,
		UserID:            in.UserID,
		Kind:              KindDeposit,
		Amount:            in.Amount,
		FeeAmount:         feeAmount,
		NetAmount:         in.Amount.Sub(feeAmount),
		ExternalMethodRef: in.MethodRef,
	})
	if err != nil || !created {
		return tx, err
	}

	network := o.settler.Select()
	tx, ok, err := o.transition(ctx, tx, StatusPending, func(t *Transaction) {
		t.Status = StatusProcessing
		t.Network = network
	})
	if err != nil || !ok {
		return tx, err
	}
	return o.dispatch(ctx, tx, processor.DirectionInbound)
}

// Withdraw reserves amount plus the flat fee, dispatches an outbound
// settlement and captures the hold once the network confirms.
func (o *Orchestrator) Withdraw(ctx context.Context, in WithdrawInput) (Transaction, error) {
	if err := validateAmount(in.Amount); err != nil {
		return Transaction{}, err
	}
	if strings.TrimSpace(in.MethodRef) == "" {
		return Transaction{}, &ValidationError{Field: "method_ref", Reason: "is required"}
	}
	feeAmount, err := o.fees.Compute(fee.KindWithdrawal, in.Amount)
	if err != nil {
		return Transaction{}, err
	}

	tx, created, err := o.begin(ctx, Transaction{
		ID:                in.ID,
		UserID:            in.UserID,
		Kind:              KindWithdrawal,
		Amount:            in.Amount,
		FeeAmount:         feeAmount,
		NetAmount:         in.Amount,
		ExternalMethodRef: in.MethodRef,
	})
	if err != nil || !created {
		return tx, err
	}

	h, err := o.holds.Create(ctx, hold.CreateInput{
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		Amount:        tx.Total(),
		Kind:          string(tx.Kind),
	})
	if err != nil {
		return o.failFromPending(ctx, tx, err)
	}

	network := o.settler.Select()
	tx, ok, err := o.transition(ctx, tx, StatusPending, func(t *Transaction) {
		t.Status = StatusProcessing
		t.HoldID = h.ID
		t.Network = network
	})
	if err != nil || !ok {
		return tx, err
	}
	return o.dispatch(ctx, tx, processor.DirectionOutbound)
}

// Transfer moves amount to another wallet and the 2% fee to the house
// account. The sender is debited through its hold first; the recipient credit
// is retried and, if it still fails, the sender is refunded.
func (o *Orchestrator) Transfer(ctx context.Context, in TransferInput) (Transaction, error) {
	if err := validateAmount(in.Amount); err != nil {
		return Transaction{}, err
	}
	if strings.TrimSpace(in.ToUserID) == "" {
		return Transaction{}, &ValidationError{Field: "to_user_id", Reason: "is required"}
	}
	if in.ToUserID == in.UserID {
		return Transaction{}, &ValidationError{Field: "to_user_id", Reason: "cannot transfer to the same wallet"}
	}
	feeAmount, err := o.fees.Compute(fee.KindTransfer, in.Amount)
	if err != nil {
		return Transaction{}, err
	}

	tx, created, err := o.begin(ctx, Transaction{
		ID:                 in.ID,
		UserID:             in.UserID,
		Kind:               KindTransfer,
		Amount:             in.Amount,
		FeeAmount:          feeAmount,
		NetAmount:          in.Amount,
		CounterpartyUserID: in.ToUserID,
	})
	if err != nil || !created {
		return tx, err
	}

	h, err := o.holds.Create(ctx, hold.CreateInput{
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		Amount:        tx.Total(),
		Kind:          string(tx.Kind),
	})
	if err != nil {
		return o.failFromPending(ctx, tx, err)
	}
	tx, ok, err := o.transition(ctx, tx, StatusPending, func(t *Transaction) {
		t.Status = StatusProcessing
		t.HoldID = h.ID
	})
	if err != nil || !ok {
		return tx, err
	}

	if _, err := o.holds.Capture(ctx, tx.HoldID, debitKey(tx.ID), tx.Total()); err != nil {
		return o.failCapture(ctx, tx, err)
	}
	return o.finishTransfer(ctx, tx)
}

// finishTransfer credits the recipient of a transfer whose sender debit has
// landed. A recipient credit that keeps failing is compensated by refunding
// the sender.
func (o *Orchestrator) finishTransfer(ctx context.Context, tx Transaction) (Transaction, error) {
	if err := o.creditWithRetry(ctx, tx.CounterpartyUserID, tx.NetAmount, creditKey(tx.ID)); err != nil {
		o.logger.Error("transfer credit failed, refunding sender",
			slog.String("transaction_id", tx.ID),
			slog.String("recipient_user_id", tx.CounterpartyUserID),
			slog.Any("error", err))
		if refundErr := o.creditWithRetry(ctx, tx.UserID, tx.Total(), refundKey(tx.ID)); refundErr != nil {
			o.logger.Error("transfer refund failed",
				slog.String("transaction_id", tx.ID),
				slog.String("user_id", tx.UserID),
				slog.Any("error", refundErr))
		}
		return o.fail(ctx, tx, StatusProcessing, ReasonRecipientCredit, err)
	}

	o.collectFee(ctx, tx)
	return o.complete(ctx, tx, "")
}

// DebitInternal takes amount from the wallet with no fee and no settlement
// network. It fails with ledger.ErrInsufficientFunds when the available
// balance does not cover amount.
func (o *Orchestrator) DebitInternal(ctx context.Context, in InternalInput) (Transaction, error) {
	return o.internal(ctx, in, KindWithdrawal, in.Amount.Neg())
}

// CreditInternal adds amount to the wallet with no fee and no settlement
// network.
func (o *Orchestrator) CreditInternal(ctx context.Context, in InternalInput) (Transaction, error) {
	return o.internal(ctx, in, KindDeposit, in.Amount)
}

func (o *Orchestrator) internal(ctx context.Context, in InternalInput, kind Kind, delta decimal.Decimal) (Transaction, error) {
	if err := validateAmount(in.Amount); err != nil {
		return Transaction{}, err
	}
	tx, created, err := o.begin(ctx, Transaction{
		ID:        in.ID,
		UserID:    in.UserID,
		Kind:      kind,
		Amount:    in.Amount,
		FeeAmount: decimal.Zero,
		NetAmount: in.Amount,
		Internal:  true,
	})
	if err != nil || !created {
		return tx, err
	}

	key := creditKey(tx.ID)
	if kind == KindWithdrawal {
		key = debitKey(tx.ID)
	}
	if err := o.apply(ctx, tx.UserID, delta, key); err != nil {
		return o.failFromPending(ctx, tx, err)
	}
	return o.completeFrom(ctx, tx, StatusPending, "")
}

// Resolve applies an out-of-band settlement outcome to a processing
// transaction exactly as the synchronous path would. Terminal transactions
// are returned unchanged with ErrAlreadyTerminal.
func (o *Orchestrator) Resolve(ctx context.Context, id string, success bool, processorRef, reason string) (Transaction, error) {
	tx, err := o.repo.Get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if tx.Status.Terminal() {
		return tx, ErrAlreadyTerminal
	}
	if tx.Status != StatusProcessing || tx.Kind == KindTransfer || tx.Internal {
		return tx, ErrNotResolvable
	}
	if processorRef == "" {
		processorRef = tx.ProcessorRef
	}
	if success {
		return o.settled(ctx, tx, processorRef)
	}
	if reason == "" {
		reason = "declined by network"
	}
	perr := &processor.Error{Network: tx.Network, Reason: reason}
	return o.declined(ctx, tx, perr)
}

// Recover drives a transfer left processing by an interrupted saga to a
// terminal state. Every leg is keyed by the transaction id, so legs that
// already landed are not repeated.
func (o *Orchestrator) Recover(ctx context.Context, id string) (Transaction, error) {
	tx, err := o.repo.Get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if tx.Status.Terminal() {
		return tx, ErrAlreadyTerminal
	}
	if tx.Status != StatusProcessing || tx.Kind != KindTransfer {
		return tx, ErrNotResolvable
	}

	h, err := o.holds.Get(ctx, tx.HoldID)
	if err != nil {
		return tx, err
	}
	switch h.Status {
	case hold.StatusActive:
		if _, err := o.holds.Capture(ctx, tx.HoldID, debitKey(tx.ID), tx.Total()); err != nil {
			return o.failCapture(ctx, tx, err)
		}
	case hold.StatusExpired:
		return o.fail(ctx, tx, StatusProcessing, ReasonHoldExpired, hold.ErrHoldExpired)
	default:
		refunded, err := o.ledger.Applied(ctx, tx.UserID, refundKey(tx.ID))
		if err != nil {
			return tx, err
		}
		if refunded {
			return o.fail(ctx, tx, StatusProcessing, ReasonRecipientCredit, nil)
		}
		// The hold was closed for capture; land the debit if it did not.
		_, err = ledger.Apply(ctx, o.ledger, tx.UserID, o.retry, func(ledger.Wallet) ledger.Delta {
			return ledger.Delta{Amount: tx.Total().Neg(), ApplyKey: debitKey(tx.ID), ReleaseHold: h.Amount}
		})
		if err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction) {
			return tx, err
		}
	}
	o.logger.Info("recovering transfer", slog.String("transaction_id", tx.ID))
	return o.finishTransfer(ctx, tx)
}

// HoldExpired forces the owning transaction to failed. The hold manager has
// already returned the reservation.
func (o *Orchestrator) HoldExpired(ctx context.Context, h hold.Hold) {
	tx, err := o.repo.Get(ctx, h.TransactionID)
	if err != nil {
		o.logger.Error("expired hold without transaction",
			slog.String("hold_id", h.ID),
			slog.String("transaction_id", h.TransactionID),
			slog.Any("error", err))
		return
	}
	if tx.Status.Terminal() {
		return
	}
	if _, err := o.fail(ctx, tx, tx.Status, ReasonHoldExpired, nil); err != nil {
		o.logger.Error("fail transaction after hold expiry",
			slog.String("transaction_id", tx.ID),
			slog.Any("error", err))
	}
}

// Get returns a transaction by id.
func (o *Orchestrator) Get(ctx context.Context, id string) (Transaction, error) {
	return o.repo.Get(ctx, id)
}

// List returns the user's most recent transactions. limit defaults to 20 and
// is capped at 100.
func (o *Orchestrator) List(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return o.repo.List(ctx, userID, limit)
}

// GetByProcessorRef returns the transaction a network reference belongs to.
func (o *Orchestrator) GetByProcessorRef(ctx context.Context, ref string) (Transaction, error) {
	return o.repo.GetByProcessorRef(ctx, ref)
}

// ListProcessing returns processing transactions untouched since olderThan.
func (o *Orchestrator) ListProcessing(ctx context.Context, olderThan time.Time, limit int) ([]Transaction, error) {
	return o.repo.ListProcessing(ctx, olderThan, limit)
}

// begin records a new pending transaction. A resubmitted id returns the
// stored record with created=false, or a ValidationError when the
// resubmission describes a different operation.
func (o *Orchestrator) begin(ctx context.Context, tx Transaction) (Transaction, bool, error) {
	if strings.TrimSpace(tx.UserID) == "" {
		return Transaction{}, false, &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	now := o.now()
	tx.Status = StatusPending
	tx.CreatedAt = now
	tx.UpdatedAt = now

	stored, created, err := o.repo.Create(ctx, tx)
	if err != nil {
		return Transaction{}, false, err
	}
	if !created {
		if !stored.sameRequest(tx) {
			return Transaction{}, false, &ValidationError{Field: "id", Reason: "already used for a different operation"}
		}
		o.logger.Debug("transaction resubmitted", slog.String("transaction_id", tx.ID), slog.String("status", string(stored.Status)))
		return stored, false, nil
	}
	o.logger.Info("transaction created",
		slog.String("transaction_id", tx.ID),
		slog.String("user_id", tx.UserID),
		slog.String("kind", string(tx.Kind)),
		slog.String("amount", tx.Amount.String()))
	return stored, true, nil
}

// dispatch submits a processing deposit or withdrawal to its network.
func (o *Orchestrator) dispatch(ctx context.Context, tx Transaction, direction processor.Direction) (Transaction, error) {
	res, err := o.settler.Settle(ctx, tx.Network, processor.Request{
		Reference: tx.ID,
		MethodRef: tx.ExternalMethodRef,
		Amount:    tx.NetAmount,
		Direction: direction,
	})
	if errors.Is(err, processor.ErrIndeterminate) {
		// Left processing for the reconciliation poll or a webhook.
		return tx, nil
	}
	if err != nil {
		var perr *processor.Error
		if !errors.As(err, &perr) {
			perr = &processor.Error{Network: tx.Network, Reason: err.Error()}
		}
		return o.declined(ctx, tx, perr)
	}

	if res.Outcome == processor.OutcomeAccepted {
		accepted, _, err := o.transition(ctx, tx, StatusProcessing, func(t *Transaction) {
			t.ProcessorRef = res.ProcessorRef
		})
		return accepted, err
	}
	return o.settled(ctx, tx, res.ProcessorRef)
}

// settled moves funds for a confirmed deposit or withdrawal.
func (o *Orchestrator) settled(ctx context.Context, tx Transaction, processorRef string) (Transaction, error) {
	switch tx.Kind {
	case KindDeposit:
		if err := o.apply(ctx, tx.UserID, tx.NetAmount, creditKey(tx.ID)); err != nil {
			// Funds arrived externally; keep the transaction processing so the
			// credit is retried on the next reconciliation.
			o.logger.Error("credit settled deposit",
				slog.String("transaction_id", tx.ID),
				slog.Any("error", err))
			return tx, fmt.Errorf("credit deposit %s: %w", tx.ID, err)
		}
	case KindWithdrawal:
		if _, err := o.holds.Capture(ctx, tx.HoldID, debitKey(tx.ID), tx.Total()); err != nil {
			return o.failCapture(ctx, tx, err)
		}
		o.collectFee(ctx, tx)
	}
	return o.complete(ctx, tx, processorRef)
}

// declined fails a processing deposit or withdrawal after a definite network
// failure, returning any hold.
func (o *Orchestrator) declined(ctx context.Context, tx Transaction, perr *processor.Error) (Transaction, error) {
	if tx.HoldID != "" {
		if _, err := o.holds.Release(ctx, tx.HoldID); err != nil {
			o.logger.Error("release hold after decline",
				slog.String("transaction_id", tx.ID),
				slog.String("hold_id", tx.HoldID),
				slog.Any("error", err))
		}
	}
	return o.fail(ctx, tx, StatusProcessing, perr.Reason, perr)
}

// failCapture maps a capture error to the transaction outcome.
func (o *Orchestrator) failCapture(ctx context.Context, tx Transaction, err error) (Transaction, error) {
	switch {
	case errors.Is(err, hold.ErrHoldExpired):
		return o.fail(ctx, tx, StatusProcessing, ReasonHoldExpired, err)
	case errors.Is(err, hold.ErrNotActive):
		// Another resolver captured or released the hold; report what it did.
		current, getErr := o.repo.Get(ctx, tx.ID)
		if getErr != nil {
			return tx, getErr
		}
		if current.Status.Terminal() {
			return current, nil
		}
		return current, ledger.ErrConflict
	case errors.Is(err, ledger.ErrConflict):
		return o.fail(ctx, tx, StatusProcessing, ReasonConflict, err)
	default:
		return o.fail(ctx, tx, StatusProcessing, err.Error(), err)
	}
}

// failFromPending fails a transaction that never reached processing.
func (o *Orchestrator) failFromPending(ctx context.Context, tx Transaction, cause error) (Transaction, error) {
	reason := cause.Error()
	switch {
	case errors.Is(cause, ledger.ErrInsufficientFunds):
		reason = ReasonInsufficientFunds
	case errors.Is(cause, ledger.ErrConflict):
		reason = ReasonConflict
	}
	return o.fail(ctx, tx, StatusPending, reason, cause)
}

// fail records a terminal failure and returns cause alongside the record.
func (o *Orchestrator) fail(ctx context.Context, tx Transaction, from Status, reason string, cause error) (Transaction, error) {
	now := o.now()
	failed, ok, err := o.transition(ctx, tx, from, func(t *Transaction) {
		t.Status = StatusFailed
		t.FailureReason = reason
		t.FailedAt = &now
	})
	if err != nil {
		return failed, err
	}
	if !ok {
		if failed.Status == StatusCompleted {
			return failed, nil
		}
		return failed, cause
	}
	o.logger.Warn("transaction failed",
		slog.String("transaction_id", failed.ID),
		slog.String("user_id", failed.UserID),
		slog.String("kind", string(failed.Kind)),
		slog.String("reason", reason))
	o.notify(ctx, failed, notification.EventTransactionFailed)
	return failed, cause
}

func (o *Orchestrator) complete(ctx context.Context, tx Transaction, processorRef string) (Transaction, error) {
	return o.completeFrom(ctx, tx, StatusProcessing, processorRef)
}

func (o *Orchestrator) completeFrom(ctx context.Context, tx Transaction, from Status, processorRef string) (Transaction, error) {
	now := o.now()
	done, ok, err := o.transition(ctx, tx, from, func(t *Transaction) {
		t.Status = StatusCompleted
		t.CompletedAt = &now
		if processorRef != "" {
			t.ProcessorRef = processorRef
		}
	})
	if err != nil || !ok {
		return done, err
	}
	o.logger.Info("transaction completed",
		slog.String("transaction_id", done.ID),
		slog.String("user_id", done.UserID),
		slog.String("kind", string(done.Kind)),
		slog.String("processor_ref", done.ProcessorRef))
	o.notify(ctx, done, notification.EventTransactionCompleted)
	return done, nil
}

// transition applies mutate and persists it when the stored status is still
// from. ok is false when another writer already moved the transaction to a
// terminal state; that record is returned instead. Any other status change is
// a conflict.
func (o *Orchestrator) transition(ctx context.Context, tx Transaction, from Status, mutate func(*Transaction)) (Transaction, bool, error) {
	next := tx
	mutate(&next)
	next.UpdatedAt = o.now()

	stored, err := o.repo.Update(ctx, next, from)
	if errors.Is(err, ErrStaleStatus) {
		if stored.Status.Terminal() {
			return stored, false, nil
		}
		return stored, false, fmt.Errorf("transaction %s: %w", tx.ID, ledger.ErrConflict)
	}
	if err != nil {
		return tx, false, err
	}
	return stored, true, nil
}

// apply lands a single signed delta with conflict retries. A duplicate apply
// key means the delta already landed.
func (o *Orchestrator) apply(ctx context.Context, userID string, amount decimal.Decimal, key string) error {
	_, err := ledger.Apply(ctx, o.ledger, userID, o.retry, func(ledger.Wallet) ledger.Delta {
		return ledger.Delta{Amount: amount, ApplyKey: key}
	})
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		return nil
	}
	return err
}

// creditWithRetry retries a credit on transient store errors on top of the
// conflict retries inside apply.
func (o *Orchestrator) creditWithRetry(ctx context.Context, userID string, amount decimal.Decimal, key string) error {
	op := func() error {
		err := o.apply(ctx, userID, amount, key)
		if errors.Is(err, ledger.ErrInvalidAmount) {
			return backoff.Permanent(err)
		}
		return err
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = o.retry.InitialDelay
	exp.MaxInterval = o.retry.MaxDelay
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(exp, o.sagaTry), ctx))
}

func (o *Orchestrator) collectFee(ctx context.Context, tx Transaction) {
	if !tx.FeeAmount.IsPositive() {
		return
	}
	if err := o.creditWithRetry(ctx, o.house, tx.FeeAmount, feeKey(tx.ID)); err != nil {
		o.logger.Error("credit fee to house account",
			slog.String("transaction_id", tx.ID),
			slog.String("fee", tx.FeeAmount.String()),
			slog.Any("error", err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, tx Transaction, eventType string) {
	if o.notifier == nil {
		return
	}
	event := notification.TransactionEvent{
		EventType:     eventType,
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Kind:          string(tx.Kind),
		Status:        string(tx.Status),
		Amount:        tx.Amount,
		Fee:           tx.FeeAmount,
		Counterparty:  tx.CounterpartyUserID,
		ProcessorRef:  tx.ProcessorRef,
		FailureReason: tx.FailureReason,
		OccurredAt:    tx.UpdatedAt,
	}
	if err := o.notifier.Send(ctx, event); err != nil {
		o.logger.Warn("notify transaction event",
			slog.String("transaction_id", tx.ID),
			slog.Any("error", err))
	}
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !amount.Equal(amount.Round(2)) {
		return &ValidationError{Field: "amount", Reason: "must have at most two decimal places"}
	}
	return nil
}

func debitKey(id string) string  { return id + ":debit" }
func creditKey(id string) string { return id + ":credit" }
func refundKey(id string) string { return id + ":refund" }
func feeKey(id string) string    { return id + ":fee" }
