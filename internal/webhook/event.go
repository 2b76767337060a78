package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/congo-pay/wallet-ledger/internal/processor"
)

// Event types emitted by settlement networks.
const (
	EventSettlementCompleted = "settlement.completed"
	EventSettlementFailed    = "settlement.failed"
)

// Disposition records what the reconciler did with an event.
type Disposition string

const (
	DispositionApplied     Disposition = "applied"
	DispositionDuplicate   Disposition = "duplicate"
	DispositionUnknownType Disposition = "unknown_type"
	DispositionUnmatched   Disposition = "unmatched"
	// DispositionFailed marks an event whose resolution errored. A redelivery
	// is recorded again with its own disposition.
	DispositionFailed Disposition = "failed"
)

// ErrInvalidEvent is returned for events missing the processor reference.
var ErrInvalidEvent = errors.New("invalid webhook event")

// Event is one received callback and its disposition.
type Event struct {
	ID           string
	Network      processor.Network
	ProcessorRef string
	Type         string
	Payload      json.RawMessage
	Disposition  Disposition
	ReceivedAt   time.Time
}

// Repository is the append-only webhook event log.
type Repository interface {
	Record(ctx context.Context, e Event) error
	ListByProcessorRef(ctx context.Context, ref string) ([]Event, error)
}
