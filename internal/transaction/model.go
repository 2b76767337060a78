package transaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet-ledger/internal/processor"
)

// Kind enumerates user-initiated operations.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindTransfer   Kind = "transfer"
)

// Status is a transaction lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Failure reasons recorded on failed transactions.
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonHoldExpired       = "hold_expired"
	ReasonConflict          = "conflict: try again"
	ReasonRecipientCredit   = "recipient credit failed"
)

var (
	// ErrNotFound is returned when no transaction matches.
	ErrNotFound = errors.New("transaction not found")
	// ErrStaleStatus is returned by Repository.Update when the stored status
	// no longer matches the expected one.
	ErrStaleStatus = errors.New("transaction status changed concurrently")
	// ErrAlreadyTerminal is returned by Resolve for transactions that already
	// reached a terminal state.
	ErrAlreadyTerminal = errors.New("transaction already terminal")
	// ErrNotResolvable is returned by Resolve for transactions that were never
	// dispatched.
	ErrNotResolvable = errors.New("transaction is not awaiting settlement")
)

// ValidationError rejects malformed input before any hold or dispatch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Transaction is the durable record of one operation. NetAmount is what the
// destination receives; the wallet debit of a withdrawal or transfer is
// Amount plus FeeAmount.
type Transaction struct {
	ID                 string
	UserID             string
	Kind               Kind
	Amount             decimal.Decimal
	FeeAmount          decimal.Decimal
	NetAmount          decimal.Decimal
	Status             Status
	CounterpartyUserID string
	ExternalMethodRef  string
	Network            processor.Network
	HoldID             string
	ProcessorRef       string
	// Internal marks zero-fee movements driven by other components, such as
	// savings locks, that never reach a settlement network.
	Internal      bool
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	FailedAt      *time.Time
}

// Total is the amount a debit-side operation takes from the wallet.
func (t Transaction) Total() decimal.Decimal {
	return t.Amount.Add(t.FeeAmount)
}

func (t Transaction) sameRequest(other Transaction) bool {
	return t.UserID == other.UserID &&
		t.Kind == other.Kind &&
		t.Amount.Equal(other.Amount) &&
		t.CounterpartyUserID == other.CounterpartyUserID &&
		t.Internal == other.Internal
}
