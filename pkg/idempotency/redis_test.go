package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "idem:payments:evt_123", Key("payments", "evt_123"))
}

func TestStore_UnreachableRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	store := NewStore(rdb, time.Hour, time.Minute)
	ctx := context.Background()

	seen, err := store.Seen(ctx, Key("payments", "evt"))
	assert.Error(t, err)
	assert.False(t, seen)

	assert.Error(t, store.Done(ctx, Key("payments", "evt")))
	assert.Error(t, store.Forget(ctx, Key("payments", "evt")))
}

func newClockedStore() (*MemoryStore, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Hour, time.Minute)
	store.SetClock(func() time.Time { return now })
	return store, &now
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("second delivery is a duplicate", func(t *testing.T) {
		store, _ := newClockedStore()
		seen, err := store.Seen(ctx, "a")
		require.NoError(t, err)
		assert.False(t, seen)

		seen, err = store.Seen(ctx, "a")
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("forget allows redelivery", func(t *testing.T) {
		store, _ := newClockedStore()
		_, err := store.Seen(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, store.Forget(ctx, "a"))

		seen, err := store.Seen(ctx, "a")
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("unfinished delivery expires with the in-flight ttl", func(t *testing.T) {
		store, now := newClockedStore()
		_, err := store.Seen(ctx, "a")
		require.NoError(t, err)

		*now = now.Add(2 * time.Minute)
		seen, err := store.Seen(ctx, "a")
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("finished delivery is kept for the full ttl", func(t *testing.T) {
		store, now := newClockedStore()
		_, err := store.Seen(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, store.Done(ctx, "a"))

		*now = now.Add(30 * time.Minute)
		seen, err := store.Seen(ctx, "a")
		require.NoError(t, err)
		assert.True(t, seen)

		*now = now.Add(time.Hour)
		seen, err = store.Seen(ctx, "a")
		require.NoError(t, err)
		assert.False(t, seen)
	})
}

func TestMemoryStore_EvictsExpiredKeys(t *testing.T) {
	ctx := context.Background()
	store, now := newClockedStore()

	for i := 0; i < 50; i++ {
		_, err := store.Seen(ctx, fmt.Sprintf("evt-%d", i))
		require.NoError(t, err)
	}
	require.Equal(t, 50, store.Len())

	*now = now.Add(2 * time.Minute)
	_, err := store.Seen(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}
