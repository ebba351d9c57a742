package session

import (
	"context"
	"sync"
)

// MemoryChangeStore keeps change sets in memory, grouped by key.
type MemoryChangeStore struct {
	mu    sync.RWMutex
	byKey map[string][]ChangeSet
}

// NewMemoryChangeStore returns an empty store.
func NewMemoryChangeStore() *MemoryChangeStore {
	return &MemoryChangeStore{byKey: map[string][]ChangeSet{}}
}

func (s *MemoryChangeStore) Append(_ context.Context, change ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[change.Key] = append(s.byKey[change.Key], change)
	return nil
}

func (s *MemoryChangeStore) List(_ context.Context, key string) ([]ChangeSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.byKey[key]
	out := make([]ChangeSet, len(stored))
	copy(out, stored)
	return out, nil
}

// Len reports the total number of stored change sets.
func (s *MemoryChangeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, changes := range s.byKey {
		total += len(changes)
	}
	return total
}
