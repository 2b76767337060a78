package transaction

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]Transaction
	byRef   map[string]string
	ordinal map[string]int
	next    int
}

// NewMemoryRepository constructs an in-memory repository for tests and
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:    make(map[string]Transaction),
		byRef:   make(map[string]string),
		ordinal: make(map[string]int),
	}
}

func (r *memoryRepository) Create(_ context.Context, tx Transaction) (Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[tx.ID]; ok {
		return existing, false, nil
	}
	r.byID[tx.ID] = tx
	r.ordinal[tx.ID] = r.next
	r.next++
	if tx.ProcessorRef != "" {
		r.byRef[tx.ProcessorRef] = tx.ID
	}
	return tx, true, nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.byID[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (r *memoryRepository) GetByProcessorRef(_ context.Context, ref string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byRef[ref]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) Update(_ context.Context, tx Transaction, from Status) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[tx.ID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if current.Status != from {
		return current, ErrStaleStatus
	}
	// Immutable fields always come from the stored record.
	tx.UserID = current.UserID
	tx.Kind = current.Kind
	tx.Amount = current.Amount
	tx.CreatedAt = current.CreatedAt
	r.byID[tx.ID] = tx
	if tx.ProcessorRef != "" {
		r.byRef[tx.ProcessorRef] = tx.ID
	}
	return tx, nil
}

func (r *memoryRepository) List(_ context.Context, userID string, limit int) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transaction
	for _, tx := range r.byID {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return r.ordinal[out[i].ID] > r.ordinal[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) ListProcessing(_ context.Context, olderThan time.Time, limit int) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transaction
	for _, tx := range r.byID {
		if tx.Status == StatusProcessing && tx.UpdatedAt.Before(olderThan) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
