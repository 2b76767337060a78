package savings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet-ledger/internal/fee"
	"github.com/congo-pay/wallet-ledger/internal/hold"
	"github.com/congo-pay/wallet-ledger/internal/ledger"
	"github.com/congo-pay/wallet-ledger/internal/logging"
	"github.com/congo-pay/wallet-ledger/internal/processor"
	"github.com/congo-pay/wallet-ledger/internal/transaction"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newEngine(t *testing.T, balance string) (*Engine, ledger.Store, *clock) {
	t.Helper()
	return newEngineWithRepo(t, balance, NewMemoryRepository())
}

func newEngineWithRepo(t *testing.T, balance string, repo Repository) (*Engine, ledger.Store, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	store := ledger.NewInMemory()
	ledger.SeedBalance(store, "alice", amt(balance))
	holds := hold.NewManager(hold.NewMemoryRepository(), store, time.Minute, logging.Discard())
	dispatcher, err := processor.NewDispatcher(processor.Config{}, logging.Discard(), processor.NewNetworkA())
	require.NoError(t, err)
	orch := transaction.NewOrchestrator(transaction.NewMemoryRepository(), store, holds, dispatcher, fee.Default(), logging.Discard(),
		transaction.WithClock(c.Now))
	return NewEngine(repo, orch, fee.Default(), logging.Discard(), WithClock(c.Now)), store, c
}

func balance(t *testing.T, store ledger.Store, userID string) decimal.Decimal {
	t.Helper()
	w, err := store.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func TestEarlyWithdrawalChargesPenaltyOnPrincipal(t *testing.T) {
	e, store, c := newEngine(t, "5000.00")
	ctx := context.Background()

	l, err := e.CreateLock(ctx, CreateLockInput{ID: "lock-1", UserID: "alice", Amount: amt("5000.00"), DurationMonths: 6})
	require.NoError(t, err)
	assert.True(t, l.InterestRate.Equal(amt("0.02")))
	assert.True(t, balance(t, store, "alice").IsZero())

	c.Set(l.LockedAt.AddDate(0, 3, 0))
	q, err := e.Quote(ctx, "alice", l.ID)
	require.NoError(t, err)
	assert.True(t, q.Early)
	assert.True(t, q.AccruedValue.Equal(amt("5025.00")), q.AccruedValue.String())
	assert.True(t, q.Penalty.Equal(amt("250.00")))
	assert.True(t, q.Payout.Equal(amt("4775.00")))

	withdrawn, err := e.Withdraw(ctx, "alice", l.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWithdrawn, withdrawn.Status)
	assert.True(t, withdrawn.PayoutAmount.Equal(amt("4775.00")))
	assert.True(t, balance(t, store, "alice").Equal(amt("4775.00")))
	assert.True(t, balance(t, store, transaction.DefaultHouseUserID).Equal(amt("250.00")))

	// A second withdrawal pays nothing more.
	_, err = e.Withdraw(ctx, "alice", l.ID)
	require.NoError(t, err)
	assert.True(t, balance(t, store, "alice").Equal(amt("4775.00")))
}

func TestMaturedWithdrawalPaysFullInterest(t *testing.T) {
	e, store, c := newEngine(t, "1000.00")
	ctx := context.Background()

	l, err := e.CreateLock(ctx, CreateLockInput{UserID: "alice", Amount: amt("1000.00"), DurationMonths: 12})
	require.NoError(t, err)

	c.Set(l.MaturesAt.AddDate(1, 0, 0))
	got, err := e.Get(ctx, "alice", l.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMatured, got.Status)

	withdrawn, err := e.Withdraw(ctx, "alice", l.ID)
	require.NoError(t, err)
	assert.True(t, withdrawn.PayoutAmount.Equal(amt("1030.00")), withdrawn.PayoutAmount.String())
	assert.True(t, withdrawn.PenaltyAmount.IsZero())
	assert.True(t, balance(t, store, "alice").Equal(amt("1030.00")))
	assert.True(t, balance(t, store, transaction.DefaultHouseUserID).IsZero())
}

func TestCreateLockValidation(t *testing.T) {
	e, store, _ := newEngine(t, "100.00")
	ctx := context.Background()

	_, err := e.CreateLock(ctx, CreateLockInput{UserID: "alice", Amount: amt("50"), DurationMonths: 5})
	var verr *transaction.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "duration_months", verr.Field)

	_, err = e.CreateLock(ctx, CreateLockInput{UserID: "alice", Amount: amt("500"), DurationMonths: 3})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.True(t, balance(t, store, "alice").Equal(amt("100.00")))

	locks, err := e.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestCreateLockIsIdempotent(t *testing.T) {
	e, store, _ := newEngine(t, "100.00")
	ctx := context.Background()
	in := CreateLockInput{ID: "lock-1", UserID: "alice", Amount: amt("40"), DurationMonths: 3}

	first, err := e.CreateLock(ctx, in)
	require.NoError(t, err)
	second, err := e.CreateLock(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, balance(t, store, "alice").Equal(amt("60.00")))
}

func TestLocksAreScopedToOwner(t *testing.T) {
	e, _, _ := newEngine(t, "100.00")
	ctx := context.Background()

	l, err := e.CreateLock(ctx, CreateLockInput{UserID: "alice", Amount: amt("10"), DurationMonths: 3})
	require.NoError(t, err)

	_, err = e.Withdraw(ctx, "mallory", l.ID)
	require.ErrorIs(t, err, ErrLockNotFound)
	_, err = e.Quote(ctx, "mallory", l.ID)
	require.ErrorIs(t, err, ErrLockNotFound)
}

func TestElapsedMonths(t *testing.T) {
	start := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		now  time.Time
		want int
	}{
		{start.Add(-time.Hour), 0},
		{time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC), 0},
		{time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC), 2},
		{time.Date(2027, 1, 31, 11, 59, 0, 0, time.UTC), 11},
		{time.Date(2027, 1, 31, 12, 0, 0, 0, time.UTC), 12},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ElapsedMonths(start, tc.now), tc.now.String())
	}
}

func TestCreateLockRetryAfterFailedFundingStaysUnfunded(t *testing.T) {
	e, store, _ := newEngine(t, "100.00")
	ctx := context.Background()
	in := CreateLockInput{ID: "lock-x", UserID: "alice", Amount: amt("5000.00"), DurationMonths: 6}

	_, err := e.CreateLock(ctx, in)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	_, err = e.CreateLock(ctx, in)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	locks, err := e.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, locks)
	_, err = e.Withdraw(ctx, "alice", "lock-x")
	require.ErrorIs(t, err, ErrLockNotFound)
	assert.True(t, balance(t, store, "alice").Equal(amt("100.00")))
}

func TestConcurrentCreateLockDebitsOnce(t *testing.T) {
	e, store, _ := newEngine(t, "5000.00")
	ctx := context.Background()
	in := CreateLockInput{ID: "lock-1", UserID: "alice", Amount: amt("1000.00"), DurationMonths: 6}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.CreateLock(ctx, in)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ledger.ErrConflict)
		}
	}
	l, err := e.CreateLock(ctx, in)
	require.NoError(t, err)
	assert.True(t, l.LockedAmount.Equal(amt("1000.00")))
	assert.True(t, balance(t, store, "alice").Equal(amt("4000.00")), balance(t, store, "alice").String())
}

type failingCreateRepository struct {
	Repository
}

func (failingCreateRepository) Create(context.Context, Lock) error {
	return errors.New("connection reset")
}

func TestCreateLockStoreFailureRefundsAndRetiresID(t *testing.T) {
	e, store, _ := newEngineWithRepo(t, "5000.00", failingCreateRepository{NewMemoryRepository()})
	ctx := context.Background()
	in := CreateLockInput{ID: "lock-1", UserID: "alice", Amount: amt("1000.00"), DurationMonths: 6}

	_, err := e.CreateLock(ctx, in)
	require.Error(t, err)
	assert.True(t, balance(t, store, "alice").Equal(amt("5000.00")))

	_, err = e.CreateLock(ctx, in)
	require.ErrorIs(t, err, ErrFundingFailed)
	assert.True(t, balance(t, store, "alice").Equal(amt("5000.00")))
}
