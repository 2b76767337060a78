package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type conflictingStore struct {
	Store
	conflicts int
	calls     int
}

func (s *conflictingStore) ApplyDelta(ctx context.Context, d Delta) (Wallet, error) {
	s.calls++
	if s.calls <= s.conflicts {
		return Wallet{}, ErrConflict
	}
	return s.Store.ApplyDelta(ctx, d)
}

func fastPolicy(retries uint64) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, InitialDelay: time.Microsecond, MaxDelay: time.Millisecond}
}

func TestApplyRetriesConflicts(t *testing.T) {
	store := &conflictingStore{Store: NewInMemory(), conflicts: 2}
	ctx := context.Background()

	w, err := Apply(ctx, store, "alice", fastPolicy(5), func(Wallet) Delta {
		return Delta{Amount: amt("10"), ApplyKey: "dep"}
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !w.Balance.Equal(amt("10")) || store.calls != 3 {
		t.Fatalf("unexpected result wallet=%+v calls=%d", w, store.calls)
	}
}

func TestApplyGivesUpAfterBoundedRetries(t *testing.T) {
	store := &conflictingStore{Store: NewInMemory(), conflicts: 100}

	_, err := Apply(context.Background(), store, "alice", fastPolicy(3), func(Wallet) Delta {
		return Delta{Amount: amt("10"), ApplyKey: "dep"}
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if store.calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", store.calls)
	}
}

func TestApplyDoesNotRetryInsufficientFunds(t *testing.T) {
	store := &conflictingStore{Store: NewInMemory()}

	_, err := Apply(context.Background(), store, "alice", fastPolicy(3), func(Wallet) Delta {
		return Delta{Amount: amt("-1"), ApplyKey: "wd"}
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", store.calls)
	}
}

func TestApplyConcurrentCreditsAllLand(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := Apply(ctx, store, "alice", fastPolicy(100), func(Wallet) Delta {
				return Delta{Amount: decimal.NewFromInt(1), ApplyKey: fmt.Sprintf("c-%d", i)}
			})
			if err != nil {
				t.Errorf("credit %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	w, _ := store.GetWallet(ctx, "alice")
	if !w.Balance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected 20, got %s", w.Balance)
	}
}
