package window

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the single-instance CounterStore backend: a mutex-guarded
// map of occurrence timestamps per key. Stale occurrences are pruned lazily
// on every increment and read against the retention horizon.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string][]time.Time
	retention time.Duration
	now       func() time.Time
}

const defaultRetention = time.Hour

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string][]time.Time),
		retention: defaultRetention,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Tests use it to pin window
// boundaries.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// WithRetention raises the retention horizon. Retention must cover the
// largest configured counting window or Count under-reports; callers wire
// it from the loaded rule and signature files. Never shrinks.
func (s *MemoryStore) WithRetention(retention time.Duration) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if retention > s.retention {
		s.retention = retention
	}
	return s
}

func (s *MemoryStore) Increment(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	kept := s.pruneLocked(key, now)
	kept = append(kept, now)
	s.entries[key] = kept
	return len(kept), nil
}

func (s *MemoryStore) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A window wider than the horizon would silently under-count; grow
	// the horizon so later occurrences survive long enough.
	if window > s.retention {
		s.retention = window
	}

	now := s.now()
	kept := s.pruneLocked(key, now)
	if len(kept) == 0 {
		delete(s.entries, key)
		return 0, nil
	}
	s.entries[key] = kept

	cutoff := now.Add(-window)
	count := 0
	for _, ts := range kept {
		if ts.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// pruneLocked drops occurrences older than the retention horizon and
// returns the surviving slice. Callers must hold the mutex.
func (s *MemoryStore) pruneLocked(key string, now time.Time) []time.Time {
	existing := s.entries[key]
	horizon := now.Add(-s.retention)
	idx := 0
	for idx < len(existing) && !existing[idx].After(horizon) {
		idx++
	}
	return existing[idx:]
}

// Sweep removes keys whose every occurrence is past the retention horizon.
// Run from a maintenance ticker; the request path never depends on it.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key := range s.entries {
		kept := s.pruneLocked(key, now)
		if len(kept) == 0 {
			delete(s.entries, key)
		} else {
			s.entries[key] = kept
		}
	}
}
