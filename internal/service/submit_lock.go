package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseSubmitLock deletes the lock only while it still holds our token, so
// a submit that outlived the TTL cannot drop a later submitter's lock.
var releaseSubmitLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// submitLock is a Redis SETNX lock owned by one submit call.
type submitLock struct {
	rdb   redis.Scripter
	key   string
	token string
}

// acquireSubmitLock takes the lock at key for ttl. It returns
// ErrSubmitInFlight when another call holds it.
func acquireSubmitLock(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (*submitLock, error) {
	token := uuid.NewString()
	ok, err := rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire submit lock: %w", err)
	}
	if !ok {
		return nil, ErrSubmitInFlight
	}
	return &submitLock{rdb: rdb, key: key, token: token}, nil
}

// Release drops the lock if it is still ours and reports whether it was.
func (l *submitLock) Release(ctx context.Context) (bool, error) {
	n, err := releaseSubmitLock.Run(ctx, l.rdb, []string{l.key}, l.token).Int()
	if err != nil {
		return false, fmt.Errorf("release submit lock: %w", err)
	}
	return n == 1, nil
}
