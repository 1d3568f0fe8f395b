package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRedis connects to TEST_REDIS_URL or skips the test.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestSubmitLock_Exclusive(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	key := "test:submit_lock:" + uuid.NewString()
	t.Cleanup(func() { rdb.Del(ctx, key) })

	lock, err := acquireSubmitLock(ctx, rdb, key, time.Minute)
	require.NoError(t, err)

	_, err = acquireSubmitLock(ctx, rdb, key, time.Minute)
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	released, err := lock.Release(ctx)
	require.NoError(t, err)
	assert.True(t, released)

	again, err := acquireSubmitLock(ctx, rdb, key, time.Minute)
	require.NoError(t, err)
	_, _ = again.Release(ctx)
}

func TestSubmitLock_ExpiredHolderKeepsNewLock(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	key := "test:submit_lock:" + uuid.NewString()
	t.Cleanup(func() { rdb.Del(ctx, key) })

	stale, err := acquireSubmitLock(ctx, rdb, key, 50*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rdb.Exists(ctx, key).Val() == 0
	}, 2*time.Second, 10*time.Millisecond)

	current, err := acquireSubmitLock(ctx, rdb, key, time.Minute)
	require.NoError(t, err)

	// The first holder finishing late must not free the second one's lock.
	released, err := stale.Release(ctx)
	require.NoError(t, err)
	assert.False(t, released)
	assert.Equal(t, current.token, rdb.Get(ctx, key).Val())

	_, err = acquireSubmitLock(ctx, rdb, key, time.Minute)
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	released, err = current.Release(ctx)
	require.NoError(t, err)
	assert.True(t, released)
}
