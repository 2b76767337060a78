package hold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet-ledger/internal/ledger"
)

const sweepBatch = 100

// Manager owns the hold lifecycle. It is the only caller of the ledger's
// Reserve and Unreserve.
type Manager struct {
	repo       Repository
	ledger     ledger.Store
	logger     *slog.Logger
	defaultTTL time.Duration
	retry      ledger.RetryPolicy
	now        func() time.Time

	mu       sync.RWMutex
	onExpire ExpiryHandler
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the manager's time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRetryPolicy overrides the conflict retry policy used by Capture.
func WithRetryPolicy(p ledger.RetryPolicy) Option {
	return func(m *Manager) { m.retry = p }
}

// NewManager constructs a hold manager. defaultTTL applies when CreateInput
// carries no TTL.
func NewManager(repo Repository, store ledger.Store, defaultTTL time.Duration, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		repo:       repo,
		ledger:     store,
		logger:     logger,
		defaultTTL: defaultTTL,
		retry:      ledger.DefaultRetryPolicy(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetExpiryHandler registers the component notified when holds expire.
func (m *Manager) SetExpiryHandler(h ExpiryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = h
}

// CreateInput describes a new hold.
type CreateInput struct {
	UserID        string
	TransactionID string
	Amount        decimal.Decimal
	Kind          string
	TTL           time.Duration
}

// Create reserves amount against the user's available balance and records an
// active hold. A transaction owns at most one hold; calling Create again for
// the same transaction returns the existing hold.
func (m *Manager) Create(ctx context.Context, in CreateInput) (Hold, error) {
	if !in.Amount.IsPositive() {
		return Hold{}, ledger.ErrInvalidAmount
	}
	if existing, err := m.repo.GetByTransaction(ctx, in.TransactionID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrHoldNotFound) {
		return Hold{}, err
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	if _, err := m.ledger.Reserve(ctx, in.UserID, in.Amount); err != nil {
		return Hold{}, err
	}

	now := m.now()
	h := Hold{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		TransactionID: in.TransactionID,
		Amount:        in.Amount,
		Kind:          in.Kind,
		Status:        StatusActive,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	if err := m.repo.Create(ctx, h); err != nil {
		if _, undoErr := m.ledger.Unreserve(ctx, in.UserID, in.Amount); undoErr != nil {
			m.logger.Error("hold reservation leaked",
				slog.String("user_id", in.UserID),
				slog.String("transaction_id", in.TransactionID),
				slog.Any("error", undoErr))
		}
		if errors.Is(err, ErrDuplicateHold) {
			return m.repo.GetByTransaction(ctx, in.TransactionID)
		}
		return Hold{}, err
	}

	m.logger.Debug("hold created",
		slog.String("hold_id", h.ID),
		slog.String("user_id", h.UserID),
		slog.String("transaction_id", h.TransactionID),
		slog.String("amount", h.Amount.String()))
	return h, nil
}

// Get returns a hold by id.
func (m *Manager) Get(ctx context.Context, id string) (Hold, error) {
	return m.repo.Get(ctx, id)
}

// ListActive returns the user's active holds.
func (m *Manager) ListActive(ctx context.Context, userID string) ([]Hold, error) {
	return m.repo.ListActive(ctx, userID)
}

// Release returns an active hold's reservation to the wallet. Releasing a hold
// that is already released or expired is a no-op.
func (m *Manager) Release(ctx context.Context, id string) (Hold, error) {
	h, err := m.repo.Close(ctx, id, StatusReleased, m.now())
	if errors.Is(err, ErrNotActive) {
		return h, nil
	}
	if err != nil {
		return Hold{}, err
	}
	if _, err := m.ledger.Unreserve(ctx, h.UserID, h.Amount); err != nil {
		return h, fmt.Errorf("unreserve hold %s: %w", h.ID, err)
	}
	m.logger.Debug("hold released", slog.String("hold_id", h.ID), slog.String("transaction_id", h.TransactionID))
	return h, nil
}

// Capture consumes an active hold and debits the wallet by debit in one
// ledger mutation, releasing the hold's reservation at the same time. A hold
// past its expiry is expired instead and ErrHoldExpired is returned.
func (m *Manager) Capture(ctx context.Context, id, applyKey string, debit decimal.Decimal) (ledger.Wallet, error) {
	h, err := m.repo.Get(ctx, id)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if h.ExpiredAt(m.now()) {
		m.expire(ctx, h)
		return ledger.Wallet{}, ErrHoldExpired
	}

	h, err = m.repo.Close(ctx, id, StatusReleased, m.now())
	if errors.Is(err, ErrNotActive) {
		if h.Status == StatusExpired {
			return ledger.Wallet{}, ErrHoldExpired
		}
		return ledger.Wallet{}, fmt.Errorf("capture hold %s: %w", id, err)
	}
	if err != nil {
		return ledger.Wallet{}, err
	}

	w, err := ledger.Apply(ctx, m.ledger, h.UserID, m.retry, func(ledger.Wallet) ledger.Delta {
		return ledger.Delta{Amount: debit.Neg(), ApplyKey: applyKey, ReleaseHold: h.Amount}
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction) {
		// The hold is closed but the delta carrying its release did not land;
		// give the reservation back so it cannot leak. A duplicate apply key
		// means the release already landed with the earlier delta.
		if _, undoErr := m.ledger.Unreserve(ctx, h.UserID, h.Amount); undoErr != nil {
			m.logger.Error("release after failed capture",
				slog.String("hold_id", h.ID),
				slog.Any("error", undoErr))
		}
		return w, err
	}
	m.logger.Debug("hold captured", slog.String("hold_id", h.ID), slog.String("transaction_id", h.TransactionID))
	return w, nil
}

// Sweep expires every active hold whose expiry is at or before now and returns
// how many were expired.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	expired := 0
	for {
		batch, err := m.repo.ListExpired(ctx, m.now(), sweepBatch)
		if err != nil {
			return expired, err
		}
		if len(batch) == 0 {
			return expired, nil
		}
		progressed := false
		for _, h := range batch {
			if m.expire(ctx, h) {
				expired++
				progressed = true
			}
		}
		if !progressed || len(batch) < sweepBatch {
			return expired, nil
		}
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.Error("hold sweep failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				m.logger.Info("expired holds", slog.Int("count", n))
			}
		}
	}
}

func (m *Manager) expire(ctx context.Context, h Hold) bool {
	closed, err := m.repo.Close(ctx, h.ID, StatusExpired, m.now())
	if err != nil {
		if !errors.Is(err, ErrNotActive) {
			m.logger.Error("expire hold", slog.String("hold_id", h.ID), slog.Any("error", err))
		}
		return false
	}
	if _, err := m.ledger.Unreserve(ctx, closed.UserID, closed.Amount); err != nil {
		m.logger.Error("unreserve expired hold", slog.String("hold_id", h.ID), slog.Any("error", err))
	}
	m.logger.Info("hold expired",
		slog.String("hold_id", closed.ID),
		slog.String("transaction_id", closed.TransactionID))

	m.mu.RLock()
	handler := m.onExpire
	m.mu.RUnlock()
	if handler != nil {
		handler.HoldExpired(ctx, closed)
	}
	return true
}
