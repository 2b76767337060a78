package transaction

import (
	"context"
	"time"
)

// Repository persists transactions. Only the Orchestrator writes through it.
type Repository interface {
	// Create inserts tx unless a transaction with the same id exists, in which
	// case the stored record is returned with created=false.
	Create(ctx context.Context, tx Transaction) (stored Transaction, created bool, err error)
	Get(ctx context.Context, id string) (Transaction, error)
	GetByProcessorRef(ctx context.Context, ref string) (Transaction, error)
	// Update overwrites the mutable fields of tx when the stored status equals
	// from. Otherwise ErrStaleStatus is returned with the stored record.
	Update(ctx context.Context, tx Transaction, from Status) (Transaction, error)
	// List returns the user's transactions newest first.
	List(ctx context.Context, userID string, limit int) ([]Transaction, error)
	// ListProcessing returns processing transactions last updated before
	// olderThan, oldest first.
	ListProcessing(ctx context.Context, olderThan time.Time, limit int) ([]Transaction, error)
}
