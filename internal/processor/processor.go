// Package processor routes settlement requests to interchangeable external
// networks and normalizes their responses.
package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Network identifies a settlement network.
type Network string

const (
	NetworkA Network = "network_a"
	NetworkB Network = "network_b"
	NetworkC Network = "network_c"
)

// Direction of funds relative to the wallet.
type Direction string

const (
	// DirectionInbound pulls funds from the external method into the wallet.
	DirectionInbound Direction = "inbound"
	// DirectionOutbound pushes funds from the wallet to the external method.
	DirectionOutbound Direction = "outbound"
)

// Outcome of a settlement submission.
type Outcome string

const (
	// OutcomeSettled means funds moved; no further confirmation follows.
	OutcomeSettled Outcome = "settled"
	// OutcomeAccepted means the network took the request and will confirm
	// asynchronously through a webhook.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeFailed is reported by Status for submissions the network rejected
	// after accepting them.
	OutcomeFailed Outcome = "failed"
)

var (
	// ErrIndeterminate is returned when the network did not answer within the
	// deadline. The submission may or may not have been taken.
	ErrIndeterminate = errors.New("settlement outcome indeterminate")
	// ErrUnknownNetwork is returned for a network that is not registered.
	ErrUnknownNetwork = errors.New("unknown settlement network")
	// ErrReferenceNotFound is returned by Status when the network has no
	// submission for the reference.
	ErrReferenceNotFound = errors.New("settlement reference not found")
)

// Request is a single settlement instruction.
type Request struct {
	// Reference is the caller's idempotency reference (the transaction id).
	Reference string
	MethodRef string
	Amount    decimal.Decimal
	Direction Direction
}

// Result is the normalized network response.
type Result struct {
	Success      bool
	Outcome      Outcome
	ProcessorRef string
	Network      Network
	Reason       string
}

// Error is a processor-specific failure surfaced uniformly.
type Error struct {
	Network Network
	Reason  string
	// Declined marks business declines, which do not count against the
	// network's circuit breaker.
	Declined bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("processor %s: %s", e.Network, e.Reason)
}

// Gateway is the capability every settlement network exposes.
type Gateway interface {
	Name() Network
	Submit(ctx context.Context, req Request) (Result, error)
	Status(ctx context.Context, reference string) (Result, error)
}
