package watermark

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a Store that keeps watermarks in memory. It backs the
// one-shot cycle command and tests.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]*time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]*time.Time)}
}

func (s *MemoryStore) Load(_ context.Context, name string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTime(s.values[name]), nil
}

func (s *MemoryStore) All(_ context.Context) (map[string]*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*time.Time, len(s.values))
	for k, v := range s.values {
		out[k] = copyTime(v)
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, values map[string]*time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = copyTime(v)
	}
	return nil
}
