package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLocker_ExclusiveUntilUnlock(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewRedisLocker(client, time.Minute)
	ctx := context.Background()

	h, ok, err := locker.TryLock(ctx, "scope")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("dbaccountsync:lock:scope"))

	_, ok, err = locker.TryLock(ctx, "scope")
	require.NoError(t, err)
	assert.False(t, ok)

	other, ok, err := locker.TryLock(ctx, "other-scope")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, other.Unlock())

	require.NoError(t, h.Unlock())
	assert.False(t, mr.Exists("dbaccountsync:lock:scope"))

	h2, ok, err := locker.TryLock(ctx, "scope")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, h2.Unlock())
}

func TestRedisLock_UnlockKeepsForeignOwner(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewRedisLocker(client, time.Minute)

	h, ok, err := locker.TryLock(context.Background(), "scope")
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate expiry followed by another owner taking the key.
	require.NoError(t, mr.Set("dbaccountsync:lock:scope", "someone-else"))
	require.NoError(t, h.Unlock())

	got, err := mr.Get("dbaccountsync:lock:scope")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_ConnectionError(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()

	_, ok, err := NewRedisLocker(client, time.Minute).TryLock(context.Background(), "scope")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	h, ok, err := locker.TryLock(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = locker.TryLock(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, h.Unlock())
	require.NoError(t, h.Unlock())

	_, ok, _ = locker.TryLock(ctx, "a")
	assert.True(t, ok)
}
