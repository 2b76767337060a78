package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestInMemoryStore_GetWalletProvisionsStartingBalance(t *testing.T) {
	s := NewInMemory(WithStartingBalance(amt("1000")))
	ctx := context.Background()

	w, err := s.GetWallet(ctx, "alice")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if !w.Balance.Equal(amt("1000")) || w.Version != 0 {
		t.Fatalf("unexpected wallet: %+v", w)
	}
	if !w.Available().Equal(amt("1000")) {
		t.Fatalf("expected available 1000, got %s", w.Available())
	}
}

func TestInMemoryStore_ApplyDeltaIncrementsVersion(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	SeedBalance(s, "alice", amt("100"))

	w, err := s.ApplyDelta(ctx, Delta{UserID: "alice", Amount: amt("-40"), ExpectedVersion: 0, ApplyKey: "tx-1"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !w.Balance.Equal(amt("60")) || w.Version != 1 || w.LastTransactionID != "tx-1" {
		t.Fatalf("unexpected wallet: %+v", w)
	}
}

func TestInMemoryStore_ApplyDeltaIdempotent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if _, err := s.ApplyDelta(ctx, Delta{UserID: "alice", Amount: amt("25"), ExpectedVersion: 0, ApplyKey: "dep-1"}); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	w, err := s.ApplyDelta(ctx, Delta{UserID: "alice", Amount: amt("25"), ExpectedVersion: 1, ApplyKey: "dep-1"})
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if !w.Balance.Equal(amt("25")) || w.Version != 1 {
		t.Fatalf("duplicate changed the wallet: %+v", w)
	}
}

func TestInMemoryStore_AppliedTracksKeysPerWallet(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if _, err := s.ApplyDelta(ctx, Delta{UserID: "alice", Amount: amt("25"), ApplyKey: "dep-1"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	for _, c := range []struct {
		user, key string
		want      bool
	}{{"alice", "dep-1", true}, {"alice", "dep-2", false}, {"bob", "dep-1", false}} {
		got, err := s.Applied(ctx, c.user, c.key)
		if err != nil || got != c.want {
			t.Fatalf("Applied(%s, %s) = %v, %v; want %v", c.user, c.key, got, err, c.want)
		}
	}
}

func TestInMemoryStore_ApplyDeltaRejectsStaleVersion(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	SeedBalance(s, "alice", amt("100"))

	if _, err := s.ApplyDelta(ctx, Delta{UserID: "alice", Amount: amt("1"), ExpectedVersion: 0, ApplyKey: "a"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := s.ApplyDelta(ctx, Delta{UserID: "alice", Amount: amt("1"), ExpectedVersion: 0, ApplyKey: "b"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestInMemoryStore_ApplyDeltaInsufficientFunds(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	SeedBalance(s, "alice", amt("50"))

	w, err := s.ApplyDelta(ctx, Delta{UserID: "alice", Amount: amt("-50.01"), ExpectedVersion: 0, ApplyKey: "x"})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if !w.Balance.Equal(amt("50")) {
		t.Fatalf("balance changed: %s", w.Balance)
	}
}

func TestInMemoryStore_ConcurrentSameVersionExactlyOneWins(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	SeedBalance(s, "alice", amt("1000"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ApplyDelta(ctx, Delta{
				UserID:          "alice",
				Amount:          amt("-600"),
				ExpectedVersion: 0,
				ApplyKey:        fmt.Sprintf("w-%d", i),
			})
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Fatalf("expected one success and one conflict, got ok=%d conflicts=%d", ok, conflicts)
	}
	w, _ := s.GetWallet(ctx, "alice")
	if !w.Balance.Equal(amt("400")) {
		t.Fatalf("expected balance 400, got %s", w.Balance)
	}
}

func TestInMemoryStore_ReserveRespectsAvailable(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	SeedBalance(s, "alice", amt("100"))

	w, err := s.Reserve(ctx, "alice", amt("70"))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !w.Available().Equal(amt("30")) {
		t.Fatalf("expected available 30, got %s", w.Available())
	}
	if _, err := s.Reserve(ctx, "alice", amt("31")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := s.Unreserve(ctx, "alice", amt("80")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount on over-release, got %v", err)
	}
}

func TestInMemoryStore_DebitFundedByHold(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	SeedBalance(s, "alice", amt("102.50"))

	w, err := s.Reserve(ctx, "alice", amt("102.50"))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Without releasing the hold the debit would push available below zero.
	if _, err := s.ApplyDelta(ctx, Delta{UserID: "alice", Amount: amt("-102.50"), ExpectedVersion: w.Version, ApplyKey: "bad"}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	w, err = s.ApplyDelta(ctx, Delta{
		UserID:          "alice",
		Amount:          amt("-102.50"),
		ExpectedVersion: w.Version,
		ApplyKey:        "good",
		ReleaseHold:     amt("102.50"),
	})
	if err != nil {
		t.Fatalf("apply with release: %v", err)
	}
	if !w.Balance.IsZero() || !w.PendingHold.IsZero() {
		t.Fatalf("unexpected wallet: %+v", w)
	}
}

func TestInMemoryStore_ConcurrentReservesNeverOverdraw(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	SeedBalance(s, "alice", amt("1000"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Reserve(ctx, "alice", amt("75"))
		}()
	}
	wg.Wait()

	w, _ := s.GetWallet(ctx, "alice")
	if w.Available().IsNegative() {
		t.Fatalf("available went negative: %s", w.Available())
	}
	if !w.PendingHold.Equal(amt("975")) {
		t.Fatalf("expected 13 holds of 75, pending=%s", w.PendingHold)
	}
}
