package audit

import (
	"context"
	"sync"
)

// MemoryRecorder holds the manifest in memory. It also counts writes, which
// tests use to check that every invocation is recorded.
type MemoryRecorder struct {
	mu      sync.Mutex
	last    *Entry
	records int
	// Err, when set, is returned by Record instead of storing the entry.
	Err error
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.last = &e
	r.records++
	return nil
}

func (r *MemoryRecorder) Last(_ context.Context) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Entry{}, ErrNoEntry
	}
	return *r.last, nil
}

// Records is the number of successful Record calls.
func (r *MemoryRecorder) Records() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records
}
