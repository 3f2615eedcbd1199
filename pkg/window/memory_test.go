package window

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreIncrementAndCount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Increment(ctx, "ip:203.0.113.4")
		require.NoError(t, err)
	}

	count, err := store.Count(ctx, "ip:203.0.113.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = store.Count(ctx, "ip:198.51.100.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryStoreWindowBoundary(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return current })
	ctx := context.Background()

	_, err := store.Increment(ctx, "k")
	require.NoError(t, err)

	// 59s later the occurrence is still inside a 60s window.
	current = current.Add(59 * time.Second)
	count, err := store.Count(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// 61s after the occurrence it has aged out.
	current = current.Add(2 * time.Second)
	count, err = store.Count(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryStoreIndependentKeys(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Increment(ctx, "a")
	require.NoError(t, err)
	_, err = store.Increment(ctx, "b")
	require.NoError(t, err)
	_, err = store.Increment(ctx, "b")
	require.NoError(t, err)

	countA, err := store.Count(ctx, "a", time.Minute)
	require.NoError(t, err)
	countB, err := store.Count(ctx, "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, countA)
	assert.Equal(t, 2, countB)
}

func TestMemoryStoreReset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Increment(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "k"))

	count, err := store.Count(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryStoreCountWindowWiderThanDefaultRetention(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return current })
	ctx := context.Background()

	_, err := store.Increment(ctx, "k")
	require.NoError(t, err)

	// A 90-minute-old occurrence still counts inside a 2h window.
	current = current.Add(90 * time.Minute)
	count, err := store.Count(ctx, "k", 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStoreWithRetentionSurvivesIntermediateIncrements(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().
		WithRetention(2 * time.Hour).
		WithClock(func() time.Time { return current })
	ctx := context.Background()

	_, err := store.Increment(ctx, "k")
	require.NoError(t, err)

	// The increment 90m later must not prune the first occurrence.
	current = current.Add(90 * time.Minute)
	_, err = store.Increment(ctx, "k")
	require.NoError(t, err)

	count, err := store.Count(ctx, "k", 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.Count(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStoreWithRetentionNeverShrinks(t *testing.T) {
	store := NewMemoryStore().WithRetention(2 * time.Hour).WithRetention(time.Minute)
	assert.Equal(t, 2*time.Hour, store.retention)
}

func TestMemoryStoreSweep(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return current })
	ctx := context.Background()

	_, err := store.Increment(ctx, "stale")
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)
	store.Sweep()

	store.mu.Lock()
	_, exists := store.entries["stale"]
	store.mu.Unlock()
	assert.False(t, exists)
}
