package hold

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrHoldExpired indicates the hold lapsed before it could be captured.
	ErrHoldExpired = errors.New("hold expired")
	// ErrHoldNotFound is returned when no hold matches the lookup.
	ErrHoldNotFound = errors.New("hold not found")
	// ErrNotActive is returned by Repository.Close when the hold has already
	// left the active state.
	ErrNotActive = errors.New("hold not active")
	// ErrDuplicateHold rejects a second hold for the same transaction.
	ErrDuplicateHold = errors.New("hold already exists for transaction")
)

// Status of a hold. Active is the only non-terminal state.
type Status string

const (
	StatusActive   Status = "active"
	StatusReleased Status = "released"
	StatusExpired  Status = "expired"
)

// Hold is a temporary claim against a wallet's available balance.
type Hold struct {
	ID            string
	UserID        string
	TransactionID string
	Amount        decimal.Decimal
	Kind          string
	Status        Status
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ClosedAt      *time.Time
}

// ExpiredAt reports whether the hold is active but past its expiry.
func (h Hold) ExpiredAt(now time.Time) bool {
	return h.Status == StatusActive && !now.Before(h.ExpiresAt)
}

// Repository persists hold records.
type Repository interface {
	Create(ctx context.Context, h Hold) error
	Get(ctx context.Context, id string) (Hold, error)
	GetByTransaction(ctx context.Context, transactionID string) (Hold, error)
	// Close moves an active hold to the given terminal status. It returns
	// ErrNotActive, along with the stored hold, when the hold is not active.
	Close(ctx context.Context, id string, to Status, at time.Time) (Hold, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Hold, error)
	ListActive(ctx context.Context, userID string) ([]Hold, error)
}

// ExpiryHandler is notified after a hold expires and its reservation has been
// returned to the wallet.
type ExpiryHandler interface {
	HoldExpired(ctx context.Context, h Hold)
}
