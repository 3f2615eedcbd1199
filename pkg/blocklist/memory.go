package blocklist

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}
	if entry.Expired(s.now()) {
		// Lazy purge; correctness never depends on it.
		s.mu.Lock()
		if stored, ok := s.entries[key]; ok && stored.Expired(s.now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, nil
	}
	return &entry, nil
}

func (s *MemoryStore) Put(ctx context.Context, entry Entry) error {
	if entry.Key == "" || entry.ExpiresAt.IsZero() {
		return ErrInvalidEntry
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Active(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	active := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		if !entry.Expired(now) {
			active = append(active, entry)
		}
	}
	return active, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Sweep purges expired entries. Driven by a maintenance ticker.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
		}
	}
}
