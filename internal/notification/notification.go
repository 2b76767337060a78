package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// EventTransactionCompleted is emitted when a transaction completes.
	EventTransactionCompleted = "transaction.completed"
	// EventTransactionFailed is emitted when a transaction fails or is cancelled.
	EventTransactionFailed = "transaction.failed"
)

// TransactionEvent describes a terminal transaction transition.
type TransactionEvent struct {
	EventType     string          `json:"event_type"`
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	Kind          string          `json:"kind"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Counterparty  string          `json:"counterparty_user_id,omitempty"`
	ProcessorRef  string          `json:"processor_ref,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Notifier delivers transaction events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, event TransactionEvent) error
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, event TransactionEvent) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("event_type", event.EventType),
		slog.String("transaction_id", event.TransactionID),
		slog.String("user_id", event.UserID),
		slog.String("kind", event.Kind),
		slog.String("status", event.Status),
		slog.String("amount", event.Amount.String()))
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Send delivers to all notifiers even when one fails.
func (m Multi) Send(ctx context.Context, event TransactionEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
