package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps artifacts in process memory. Useful for tests and for
// deployments that always retrain on start.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Load returns a copy of the stored artifact.
func (s *MemoryStore) Load(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrArtifactMiss)
	}
	return append([]byte(nil), value...), nil
}

// Save stores a copy of data.
func (s *MemoryStore) Save(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = append([]byte(nil), data...)
	return nil
}

// Names lists stored artifact names.
func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	return names
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
