package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet-ledger/internal/ledger"
	"github.com/congo-pay/wallet-ledger/internal/notification"
	"github.com/congo-pay/wallet-ledger/internal/processor"
)

var errConnReset = errors.New("connection reset")

// brokenWalletStore rejects every delta for one wallet until healed.
type brokenWalletStore struct {
	ledger.Store
	userID string

	mu     sync.Mutex
	broken bool
}

func (s *brokenWalletStore) ApplyDelta(ctx context.Context, d ledger.Delta) (ledger.Wallet, error) {
	s.mu.Lock()
	broken := s.broken && d.UserID == s.userID
	s.mu.Unlock()
	if broken {
		return ledger.Wallet{}, errConnReset
	}
	return s.Store.ApplyDelta(ctx, d)
}

func (s *brokenWalletStore) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = false
}

// crashingRepository loses every terminal status write until healed, leaving
// the transaction processing as a crash mid-saga would.
type crashingRepository struct {
	Repository

	mu       sync.Mutex
	crashing bool
}

func (r *crashingRepository) Update(ctx context.Context, tx Transaction, from Status) (Transaction, error) {
	r.mu.Lock()
	crashing := r.crashing && tx.Status.Terminal()
	r.mu.Unlock()
	if crashing {
		return Transaction{}, errConnReset
	}
	return r.Repository.Update(ctx, tx, from)
}

func (r *crashingRepository) heal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crashing = false
}

type panickingGateway struct {
	processor.Gateway
}

func (panickingGateway) Submit(context.Context, processor.Request) (processor.Result, error) {
	panic("nil response body")
}

func TestTransferRefundsSenderWhenRecipientCreditFails(t *testing.T) {
	broken := &brokenWalletStore{userID: "bob", broken: true}
	f := newFixture(t, fixtureConfig{wrapStore: func(s ledger.Store) ledger.Store {
		broken.Store = s
		return broken
	}})
	ledger.SeedBalance(f.store, "alice", amt("1000.00"))

	tx, err := f.orch.Transfer(context.Background(), TransferInput{ID: "tr-1", UserID: "alice", ToUserID: "bob", Amount: amt("100.00")})
	require.ErrorIs(t, err, errConnReset)
	assert.Equal(t, StatusFailed, tx.Status)
	assert.Equal(t, ReasonRecipientCredit, tx.FailureReason)

	alice := f.wallet(t, "alice")
	assert.True(t, alice.Balance.Equal(amt("1000.00")), alice.Balance.String())
	assert.True(t, alice.PendingHold.IsZero())
	assert.True(t, f.wallet(t, "bob").Balance.IsZero())
	assert.True(t, f.wallet(t, DefaultHouseUserID).Balance.IsZero())

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notification.EventTransactionFailed, events[0].EventType)
}

func TestWithdrawalGatewayPanicFailsAndReleasesHold(t *testing.T) {
	f := newFixture(t, fixtureConfig{wrapGateway: func(gw processor.Gateway) processor.Gateway {
		return panickingGateway{gw}
	}})
	ledger.SeedBalance(f.store, "alice", amt("1000.00"))

	tx, err := f.orch.Withdraw(context.Background(), WithdrawInput{ID: "wd-1", UserID: "alice", Amount: amt("100.00"), MethodRef: "bank:001"})
	var perr *processor.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StatusFailed, tx.Status)
	assert.Contains(t, tx.FailureReason, "gateway panic")

	w := f.wallet(t, "alice")
	assert.True(t, w.Balance.Equal(amt("1000.00")))
	assert.True(t, w.PendingHold.IsZero())
}

func TestRecoverCompletesTransferInterruptedAfterCredit(t *testing.T) {
	crashing := &crashingRepository{crashing: true}
	f := newFixture(t, fixtureConfig{wrapRepo: func(r Repository) Repository {
		crashing.Repository = r
		return crashing
	}})
	ledger.SeedBalance(f.store, "alice", amt("1000.00"))
	ctx := context.Background()

	_, err := f.orch.Transfer(ctx, TransferInput{ID: "tr-1", UserID: "alice", ToUserID: "bob", Amount: amt("100.00")})
	require.ErrorIs(t, err, errConnReset)
	stuck, err := f.orch.Get(ctx, "tr-1")
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, stuck.Status)

	crashing.heal()
	tx, err := f.orch.Recover(ctx, "tr-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, tx.Status)

	assert.True(t, f.wallet(t, "alice").Balance.Equal(amt("898.00")))
	assert.True(t, f.wallet(t, "alice").PendingHold.IsZero())
	assert.True(t, f.wallet(t, "bob").Balance.Equal(amt("100.00")))
	assert.True(t, f.wallet(t, DefaultHouseUserID).Balance.Equal(amt("2.00")))

	_, err = f.orch.Recover(ctx, "tr-1")
	require.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestRecoverFailsTransferWhoseSenderWasRefunded(t *testing.T) {
	crashing := &crashingRepository{crashing: true}
	broken := &brokenWalletStore{userID: "bob", broken: true}
	f := newFixture(t, fixtureConfig{
		wrapRepo: func(r Repository) Repository {
			crashing.Repository = r
			return crashing
		},
		wrapStore: func(s ledger.Store) ledger.Store {
			broken.Store = s
			return broken
		},
	})
	ledger.SeedBalance(f.store, "alice", amt("1000.00"))
	ctx := context.Background()

	_, err := f.orch.Transfer(ctx, TransferInput{ID: "tr-1", UserID: "alice", ToUserID: "bob", Amount: amt("100.00")})
	require.Error(t, err)
	stuck, err := f.orch.Get(ctx, "tr-1")
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, stuck.Status)

	crashing.heal()
	broken.heal()
	tx, err := f.orch.Recover(ctx, "tr-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, tx.Status)
	assert.Equal(t, ReasonRecipientCredit, tx.FailureReason)

	assert.True(t, f.wallet(t, "alice").Balance.Equal(amt("1000.00")))
	assert.True(t, f.wallet(t, "bob").Balance.IsZero())
	assert.True(t, f.wallet(t, DefaultHouseUserID).Balance.IsZero())
}

func TestRecoverIgnoresNetworkSettledTransactions(t *testing.T) {
	f := newFixture(t, fixtureConfig{network: processor.NetworkB})
	ctx := context.Background()

	dep, err := f.orch.Deposit(ctx, DepositInput{ID: "dep-1", UserID: "alice", Amount: amt("50"), MethodRef: "momo:242"})
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, dep.Status)

	_, err = f.orch.Recover(ctx, dep.ID)
	require.ErrorIs(t, err, ErrNotResolvable)
	_, err = f.orch.Recover(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
