package hold

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu     sync.Mutex
	byID   map[string]Hold
	byTxID map[string]string
}

// NewMemoryRepository constructs an in-memory hold repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:   make(map[string]Hold),
		byTxID: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, h Hold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byTxID[h.TransactionID]; exists {
		return ErrDuplicateHold
	}
	r.byID[h.ID] = h
	r.byTxID[h.TransactionID] = h.ID
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byID[id]
	if !ok {
		return Hold{}, ErrHoldNotFound
	}
	return h, nil
}

func (r *memoryRepository) GetByTransaction(_ context.Context, transactionID string) (Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byTxID[transactionID]
	if !ok {
		return Hold{}, ErrHoldNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) Close(_ context.Context, id string, to Status, at time.Time) (Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byID[id]
	if !ok {
		return Hold{}, ErrHoldNotFound
	}
	if h.Status != StatusActive {
		return h, ErrNotActive
	}
	h.Status = to
	h.ClosedAt = &at
	r.byID[id] = h
	return h, nil
}

func (r *memoryRepository) ListExpired(_ context.Context, now time.Time, limit int) ([]Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Hold
	for _, h := range r.byID {
		if h.ExpiredAt(now) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) ListActive(_ context.Context, userID string) ([]Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Hold
	for _, h := range r.byID {
		if h.UserID == userID && h.Status == StatusActive {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
