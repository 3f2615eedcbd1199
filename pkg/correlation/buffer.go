package correlation

import (
	"sync"
	"time"

	"github.com/scrapemaster/sentinel/pkg/types"
)

// Buffer is the rolling SecurityEvent window the correlator reads from.
// Events older than the retention period are pruned on append and on read;
// a hard capacity bound protects memory under sustained attack volume.
type Buffer struct {
	mu        sync.RWMutex
	events    []types.SecurityEvent
	retention time.Duration
	capacity  int
	now       func() time.Time
}

func NewBuffer(retention time.Duration, capacity int) *Buffer {
	if retention <= 0 {
		retention = time.Hour
	}
	if capacity <= 0 {
		capacity = 10000
	}
	return &Buffer{
		retention: retention,
		capacity:  capacity,
		now:       time.Now,
	}
}

func (b *Buffer) WithClock(now func() time.Time) *Buffer {
	b.now = now
	return b
}

func (b *Buffer) Append(event types.SecurityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked()
	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[len(b.events)-b.capacity:]
	}
}

// Since returns events newer than the given cutoff, oldest first.
func (b *Buffer) Since(cutoff time.Time) []types.SecurityEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []types.SecurityEvent
	for _, event := range b.events {
		if event.Timestamp.After(cutoff) {
			out = append(out, event)
		}
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// Prune drops events past the retention horizon. Also called from the
// maintenance ticker so idle periods don't pin stale events.
func (b *Buffer) Prune() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
}

func (b *Buffer) pruneLocked() {
	horizon := b.now().Add(-b.retention)
	idx := 0
	for idx < len(b.events) && !b.events[idx].Timestamp.After(horizon) {
		idx++
	}
	if idx > 0 {
		b.events = b.events[idx:]
	}
}
