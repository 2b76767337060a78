package savings

import (
	"context"
	"sort"
	"sync"
)

// Repository persists savings locks.
type Repository interface {
	Create(ctx context.Context, l Lock) error
	Get(ctx context.Context, id string) (Lock, error)
	List(ctx context.Context, userID string) ([]Lock, error)
	// MarkWithdrawn stores the withdrawal fields of l when the stored lock is
	// still active. Otherwise ErrAlreadyWithdrawn is returned with the stored
	// lock.
	MarkWithdrawn(ctx context.Context, l Lock) (Lock, error)
}

type memoryRepository struct {
	mu    sync.RWMutex
	locks map[string]Lock
}

// NewMemoryRepository constructs an in-memory repository for tests and
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{locks: make(map[string]Lock)}
}

func (r *memoryRepository) Create(_ context.Context, l Lock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.locks[l.ID]; exists {
		return ErrDuplicateLock
	}
	r.locks[l.ID] = l
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Lock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.locks[id]
	if !ok {
		return Lock{}, ErrLockNotFound
	}
	return l, nil
}

func (r *memoryRepository) List(_ context.Context, userID string) ([]Lock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Lock
	for _, l := range r.locks {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LockedAt.After(out[j].LockedAt) })
	return out, nil
}

func (r *memoryRepository) MarkWithdrawn(_ context.Context, l Lock) (Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.locks[l.ID]
	if !ok {
		return Lock{}, ErrLockNotFound
	}
	if current.Status != StatusActive {
		return current, ErrAlreadyWithdrawn
	}
	current.Status = StatusWithdrawn
	current.PayoutTransactionID = l.PayoutTransactionID
	current.PayoutAmount = l.PayoutAmount
	current.PenaltyAmount = l.PenaltyAmount
	current.WithdrawnAt = l.WithdrawnAt
	r.locks[l.ID] = current
	return current, nil
}
