package webhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet-ledger/internal/logging"
	"github.com/congo-pay/wallet-ledger/internal/processor"
	"github.com/congo-pay/wallet-ledger/internal/transaction"
)

// stubTransactions serves a fixed set of transactions and records what the
// reconciler asks of it.
type stubTransactions struct {
	mu         sync.Mutex
	txs        map[string]transaction.Transaction
	resolveErr error
	recovered  []string
}

func newStubTransactions(txs ...transaction.Transaction) *stubTransactions {
	s := &stubTransactions{txs: make(map[string]transaction.Transaction)}
	for _, tx := range txs {
		s.txs[tx.ID] = tx
	}
	return s
}

func (s *stubTransactions) Get(_ context.Context, id string) (transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return transaction.Transaction{}, transaction.ErrNotFound
	}
	return tx, nil
}

func (s *stubTransactions) GetByProcessorRef(_ context.Context, ref string) (transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.ProcessorRef == ref {
			return tx, nil
		}
	}
	return transaction.Transaction{}, transaction.ErrNotFound
}

func (s *stubTransactions) ListProcessing(context.Context, time.Time, int) ([]transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []transaction.Transaction
	for _, tx := range s.txs {
		if tx.Status == transaction.StatusProcessing {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *stubTransactions) Resolve(_ context.Context, id string, _ bool, _, _ string) (transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolveErr != nil {
		return s.txs[id], s.resolveErr
	}
	tx := s.txs[id]
	tx.Status = transaction.StatusCompleted
	s.txs[id] = tx
	return tx, nil
}

func (s *stubTransactions) Recover(_ context.Context, id string) (transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovered = append(s.recovered, id)
	tx := s.txs[id]
	tx.Status = transaction.StatusCompleted
	s.txs[id] = tx
	return tx, nil
}

func TestPollRecoversTransfersWithoutNetwork(t *testing.T) {
	txs := newStubTransactions(
		transaction.Transaction{ID: "tr-1", Kind: transaction.KindTransfer, Status: transaction.StatusProcessing},
		transaction.Transaction{ID: "dep-1", Kind: transaction.KindDeposit, Status: transaction.StatusProcessing, Network: processor.NetworkB},
	)
	r := NewReconciler(NewMemoryRepository(), txs, nil, logging.Discard())

	n, err := r.Poll(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"tr-1"}, txs.recovered)

	dep, err := txs.Get(context.Background(), "dep-1")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusProcessing, dep.Status)
}

func TestHandleRecordsEventWhenResolveFails(t *testing.T) {
	txs := newStubTransactions(transaction.Transaction{
		ID:           "dep-1",
		Kind:         transaction.KindDeposit,
		Status:       transaction.StatusProcessing,
		Network:      processor.NetworkB,
		ProcessorRef: "NB-1",
	})
	txs.resolveErr = errors.New("connection reset")
	events := NewMemoryRepository()
	r := NewReconciler(events, txs, nil, logging.Discard())
	ctx := context.Background()

	ev, err := r.Handle(ctx, Incoming{Network: processor.NetworkB, ProcessorRef: "NB-1", Type: EventSettlementCompleted})
	require.ErrorIs(t, err, txs.resolveErr)
	assert.Equal(t, DispositionFailed, ev.Disposition)

	logged, err := events.ListByProcessorRef(ctx, "NB-1")
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, DispositionFailed, logged[0].Disposition)

	// A redelivery after the store recovers is applied and recorded again.
	txs.resolveErr = nil
	ev, err = r.Handle(ctx, Incoming{Network: processor.NetworkB, ProcessorRef: "NB-1", Type: EventSettlementCompleted})
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, ev.Disposition)
	logged, err = events.ListByProcessorRef(ctx, "NB-1")
	require.NoError(t, err)
	assert.Len(t, logged, 2)
}
