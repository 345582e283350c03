package service

import (
	"context"
	"fmt"
	"time"

	"github.com/taskflow/taskflow/internal/pkg/id"
)

// releaseScript deletes the lock only when it still holds our token
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// LockClient is the subset of the Redis client the locker needs
type LockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisLocker is a Locker built on SET NX with a TTL. Release is
// token-checked so an expired lock taken over by another process is never
// deleted by its previous owner.
type RedisLocker struct {
	client LockClient
}

// NewRedisLocker creates a new Redis locker
func NewRedisLocker(client LockClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire implements Locker
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := id.NewSharedID()

	ok, err := l.client.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if _, err := l.client.Eval(ctx, releaseScript, []string{key}, token); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
