package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type inMemoryStore struct {
	mu       sync.Mutex
	wallets  map[string]Wallet
	applied  map[string]map[string]struct{}
	starting decimal.Decimal
	now      func() time.Time
}

// Option configures the in-memory store.
type Option func(*inMemoryStore)

// WithStartingBalance sets the balance newly provisioned wallets receive.
func WithStartingBalance(amount decimal.Decimal) Option {
	return func(s *inMemoryStore) { s.starting = amount }
}

// WithClock overrides the time source used for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(s *inMemoryStore) { s.now = now }
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and local development.
func NewInMemory(opts ...Option) Store {
	s := &inMemoryStore{
		wallets: make(map[string]Wallet),
		applied: make(map[string]map[string]struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *inMemoryStore) GetWallet(_ context.Context, userID string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walletLocked(userID), nil
}

func (s *inMemoryStore) ApplyDelta(_ context.Context, delta Delta) (Wallet, error) {
	if err := delta.validate(); err != nil {
		return Wallet{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.walletLocked(delta.UserID)
	if _, seen := s.applied[delta.UserID][delta.ApplyKey]; seen {
		return w, ErrDuplicateTransaction
	}
	if w.Version != delta.ExpectedVersion {
		return w, ErrConflict
	}

	balance, pending, err := settle(w, delta)
	if err != nil {
		return w, err
	}

	w.Balance = balance
	w.PendingHold = pending
	w.Version++
	w.LastUpdated = s.now()
	w.LastTransactionID = delta.ApplyKey
	s.wallets[delta.UserID] = w

	if s.applied[delta.UserID] == nil {
		s.applied[delta.UserID] = make(map[string]struct{})
	}
	s.applied[delta.UserID][delta.ApplyKey] = struct{}{}
	return w, nil
}

func (s *inMemoryStore) Applied(_ context.Context, userID, applyKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, seen := s.applied[userID][applyKey]
	return seen, nil
}

func (s *inMemoryStore) Reserve(_ context.Context, userID string, amount decimal.Decimal) (Wallet, error) {
	if !amount.IsPositive() {
		return Wallet{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.walletLocked(userID)
	if w.Available().LessThan(amount) {
		return w, ErrInsufficientFunds
	}
	w.PendingHold = w.PendingHold.Add(amount)
	w.Version++
	w.LastUpdated = s.now()
	s.wallets[userID] = w
	return w, nil
}

func (s *inMemoryStore) Unreserve(_ context.Context, userID string, amount decimal.Decimal) (Wallet, error) {
	if !amount.IsPositive() {
		return Wallet{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.walletLocked(userID)
	if w.PendingHold.LessThan(amount) {
		return w, ErrInvalidAmount
	}
	w.PendingHold = w.PendingHold.Sub(amount)
	w.Version++
	w.LastUpdated = s.now()
	s.wallets[userID] = w
	return w, nil
}

// walletLocked must be called with s.mu held.
func (s *inMemoryStore) walletLocked(userID string) Wallet {
	w, ok := s.wallets[userID]
	if !ok {
		w = Wallet{
			UserID:      userID,
			Balance:     s.starting,
			PendingHold: decimal.Zero,
			LastUpdated: s.now(),
		}
		s.wallets[userID] = w
	}
	return w
}
