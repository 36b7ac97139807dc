package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClockedStore() (*MemoryStore, *time.Time) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStoreWithClock(func() time.Time { return now })
	return store, &now
}

func TestMemoryStore_SetGet(t *testing.T) {
	store, _ := newClockedStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestMemoryStore_MissingKey(t *testing.T) {
	store, _ := newClockedStore()

	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_ExpiryIsLazy(t *testing.T) {
	store, now := newClockedStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))

	*now = now.Add(59 * time.Second)
	_, err := store.Get(ctx, "k")
	require.NoError(t, err)

	*now = now.Add(2 * time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	store, now := newClockedStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", 0))

	*now = now.Add(1000 * time.Hour)
	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestMemoryStore_TouchExtendsTTL(t *testing.T) {
	store, now := newClockedStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))

	*now = now.Add(50 * time.Second)
	require.NoError(t, store.Touch(ctx, "k", time.Minute))

	*now = now.Add(50 * time.Second)
	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestMemoryStore_TouchMissingKey(t *testing.T) {
	store, _ := newClockedStore()

	err := store.Touch(context.Background(), "absent", time.Minute)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_TouchExpiredKey(t *testing.T) {
	store, now := newClockedStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	*now = now.Add(2 * time.Minute)

	err := store.Touch(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_Delete(t *testing.T) {
	store, _ := newClockedStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_IncrBy(t *testing.T) {
	store, _ := newClockedStore()
	ctx := context.Background()

	n, err := store.IncrBy(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.IncrBy(ctx, "counter", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMemoryStore_IncrByRestartsWindow(t *testing.T) {
	store, now := newClockedStore()
	ctx := context.Background()

	_, err := store.IncrBy(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)

	*now = now.Add(50 * time.Second)
	_, err = store.IncrBy(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)

	// The second increment refreshed the TTL
	*now = now.Add(50 * time.Second)
	n, err := GetInt64(ctx, store, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryStore_IncrByAfterExpiryStartsFresh(t *testing.T) {
	store, now := newClockedStore()
	ctx := context.Background()

	_, err := store.IncrBy(ctx, "counter", 5, time.Minute)
	require.NoError(t, err)

	*now = now.Add(2 * time.Minute)
	n, err := store.IncrBy(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGetInt64_AbsentIsZero(t *testing.T) {
	store, _ := newClockedStore()

	n, err := GetInt64(context.Background(), store, "absent")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetInt64_CorruptValueIsZero(t *testing.T) {
	store, _ := newClockedStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "not-a-number", time.Minute))

	n, err := GetInt64(ctx, store, "k")
	require.NoError(t, err)
	assert.Zero(t, n)
}
