package blocklist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	entry := Entry{
		Key:       IPKey("203.0.113.4"),
		Reason:    "critical signature match",
		CreatedAt: now,
		ExpiresAt: now.Add(30 * time.Minute),
	}
	require.NoError(t, store.Put(ctx, entry))

	got, err := store.Get(ctx, IPKey("203.0.113.4"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "critical signature match", got.Reason)
}

func TestMemoryStoreExpiredEntryIsAbsent(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return current })
	ctx := context.Background()

	entry := Entry{
		Key:       IPKey("203.0.113.4"),
		Reason:    "test",
		CreatedAt: current,
		ExpiresAt: current.Add(time.Minute),
	}
	require.NoError(t, store.Put(ctx, entry))

	// One second before expiry the block holds.
	current = current.Add(59 * time.Second)
	got, err := store.Get(ctx, entry.Key)
	require.NoError(t, err)
	assert.NotNil(t, got)

	// At expiry the entry behaves as absent.
	current = current.Add(time.Second)
	got, err = store.Get(ctx, entry.Key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreRejectsInvalidEntry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Put(ctx, Entry{Reason: "missing key"})
	assert.ErrorIs(t, err, ErrInvalidEntry)

	err = store.Put(ctx, Entry{Key: IPKey("1.2.3.4")})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestMemoryStoreActiveSkipsExpired(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return current })
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Entry{
		Key:       IPKey("203.0.113.4"),
		Reason:    "short",
		CreatedAt: current,
		ExpiresAt: current.Add(time.Minute),
	}))
	require.NoError(t, store.Put(ctx, Entry{
		Key:       IPKey("198.51.100.1"),
		Reason:    "long",
		CreatedAt: current,
		ExpiresAt: current.Add(time.Hour),
	}))

	current = current.Add(10 * time.Minute)
	active, err := store.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, IPKey("198.51.100.1"), active[0].Key)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	entry := Entry{
		Key:       SessionKey("abc123"),
		Reason:    "quarantine",
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
	require.NoError(t, store.Put(ctx, entry))
	require.NoError(t, store.Delete(ctx, entry.Key))

	got, err := store.Get(ctx, entry.Key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "ip:203.0.113.4", IPKey("203.0.113.4"))
	assert.Equal(t, "session:abc", SessionKey("abc"))

	ip, ok := IPFromKey("ip:203.0.113.4")
	assert.True(t, ok)
	assert.Equal(t, "203.0.113.4", ip)

	_, ok = IPFromKey("session:abc")
	assert.False(t, ok)
}
