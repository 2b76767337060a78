package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet-ledger/internal/hold"
	"github.com/congo-pay/wallet-ledger/internal/processor"
	"github.com/congo-pay/wallet-ledger/internal/transaction"
)

const pollBatch = 100

// Transactions is the slice of the orchestrator the reconciler drives.
type Transactions interface {
	Get(ctx context.Context, id string) (transaction.Transaction, error)
	GetByProcessorRef(ctx context.Context, ref string) (transaction.Transaction, error)
	ListProcessing(ctx context.Context, olderThan time.Time, limit int) ([]transaction.Transaction, error)
	Resolve(ctx context.Context, id string, success bool, processorRef, reason string) (transaction.Transaction, error)
	Recover(ctx context.Context, id string) (transaction.Transaction, error)
}

// StatusChecker queries a network for the state of a submission.
type StatusChecker interface {
	Status(ctx context.Context, network processor.Network, reference string) (processor.Result, error)
}

// Incoming is a parsed settlement callback.
type Incoming struct {
	Network      processor.Network
	ProcessorRef string
	Type         string
	// Reference is the transaction id echoed by the network, used when the
	// processor reference has not been recorded yet.
	Reference string
	Reason    string
	Payload   json.RawMessage
}

// Reconciler applies out-of-band settlement outcomes to processing
// transactions.
type Reconciler struct {
	events Repository
	txs    Transactions
	status StatusChecker
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler constructs a reconciler. status may be nil when polling is
// not used.
func NewReconciler(events Repository, txs Transactions, status StatusChecker, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		events: events,
		txs:    txs,
		status: status,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle records the event and, when it matches a processing transaction,
// resolves it. Duplicates, unknown types and unmatched references are
// recorded and reported through the returned event's disposition, never as
// errors. An event whose resolution errors is recorded as failed and the
// error is returned so the network retries it.
func (r *Reconciler) Handle(ctx context.Context, in Incoming) (Event, error) {
	if strings.TrimSpace(in.ProcessorRef) == "" {
		return Event{}, ErrInvalidEvent
	}
	e := Event{
		ID:           uuid.NewString(),
		Network:      in.Network,
		ProcessorRef: in.ProcessorRef,
		Type:         in.Type,
		Payload:      in.Payload,
		ReceivedAt:   r.now(),
	}

	disposition, err := r.apply(ctx, in)
	if err != nil {
		r.logger.Error("apply webhook event",
			slog.String("processor_ref", in.ProcessorRef),
			slog.String("event_type", in.Type),
			slog.Any("error", err))
		e.Disposition = DispositionFailed
		if recordErr := r.events.Record(ctx, e); recordErr != nil {
			r.logger.Error("record failed webhook event",
				slog.String("processor_ref", in.ProcessorRef),
				slog.Any("error", recordErr))
		}
		return e, err
	}
	e.Disposition = disposition

	if err := r.events.Record(ctx, e); err != nil {
		return e, err
	}
	r.logger.Info("webhook event",
		slog.String("network", string(in.Network)),
		slog.String("processor_ref", in.ProcessorRef),
		slog.String("event_type", in.Type),
		slog.String("disposition", string(disposition)))
	return e, nil
}

func (r *Reconciler) apply(ctx context.Context, in Incoming) (Disposition, error) {
	var success bool
	switch in.Type {
	case EventSettlementCompleted:
		success = true
	case EventSettlementFailed:
	default:
		return DispositionUnknownType, nil
	}

	tx, err := r.txs.GetByProcessorRef(ctx, in.ProcessorRef)
	if errors.Is(err, transaction.ErrNotFound) && in.Reference != "" {
		tx, err = r.txs.Get(ctx, in.Reference)
	}
	if errors.Is(err, transaction.ErrNotFound) {
		return DispositionUnmatched, nil
	}
	if err != nil {
		return "", err
	}
	if tx.Network != "" && in.Network != "" && tx.Network != in.Network {
		return DispositionUnmatched, nil
	}

	_, err = r.txs.Resolve(ctx, tx.ID, success, in.ProcessorRef, in.Reason)
	switch {
	case err == nil:
		return DispositionApplied, nil
	case errors.Is(err, transaction.ErrAlreadyTerminal):
		return DispositionDuplicate, nil
	case errors.Is(err, transaction.ErrNotResolvable):
		return DispositionUnmatched, nil
	case resolvedWithOutcome(err):
		// The transaction reached its terminal state; the error is the
		// business outcome, not a reconciliation failure.
		return DispositionApplied, nil
	default:
		return "", err
	}
}

// Poll resolves processing transactions older than olderThan by asking their
// network for the submission status. Transfers never reach a network and are
// recovered in place. It returns how many were resolved.
func (r *Reconciler) Poll(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := r.txs.ListProcessing(ctx, r.now().Add(-olderThan), pollBatch)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, tx := range stale {
		if tx.Network == "" {
			if r.recoverStuck(ctx, tx) {
				resolved++
			}
			continue
		}
		if r.status == nil {
			continue
		}
		res, err := r.status.Status(ctx, tx.Network, tx.ID)
		var success bool
		var reason string
		switch {
		case errors.Is(err, processor.ErrReferenceNotFound):
			reason = "not received by network"
		case err != nil:
			r.logger.Warn("poll settlement status",
				slog.String("transaction_id", tx.ID),
				slog.String("network", string(tx.Network)),
				slog.Any("error", err))
			continue
		case res.Outcome == processor.OutcomeAccepted:
			continue
		case res.Outcome == processor.OutcomeFailed:
			reason = res.Reason
		default:
			success = true
		}

		_, err = r.txs.Resolve(ctx, tx.ID, success, res.ProcessorRef, reason)
		if err != nil && !errors.Is(err, transaction.ErrAlreadyTerminal) && !resolvedWithOutcome(err) {
			r.logger.Error("resolve polled transaction",
				slog.String("transaction_id", tx.ID),
				slog.Any("error", err))
			continue
		}
		resolved++
	}
	return resolved, nil
}

func (r *Reconciler) recoverStuck(ctx context.Context, tx transaction.Transaction) bool {
	done, err := r.txs.Recover(ctx, tx.ID)
	if errors.Is(err, transaction.ErrAlreadyTerminal) || done.Status.Terminal() {
		return true
	}
	if !errors.Is(err, transaction.ErrNotResolvable) {
		r.logger.Error("recover stuck transaction",
			slog.String("transaction_id", tx.ID),
			slog.Any("error", err))
	}
	return false
}

// Run polls on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Poll(ctx, olderThan)
			if err != nil {
				r.logger.Error("reconciliation poll failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				r.logger.Info("reconciled transactions", slog.Int("count", n))
			}
		}
	}
}

func resolvedWithOutcome(err error) bool {
	var perr *processor.Error
	return errors.As(err, &perr) || errors.Is(err, hold.ErrHoldExpired)
}
