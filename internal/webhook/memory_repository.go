package webhook

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryRepository constructs an in-memory event log.
func NewMemoryRepository() Repository {
	return &memoryRepository{}
}

func (r *memoryRepository) Record(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memoryRepository) ListByProcessorRef(_ context.Context, ref string) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, e := range r.events {
		if e.ProcessorRef == ref {
			out = append(out, e)
		}
	}
	return out, nil
}
