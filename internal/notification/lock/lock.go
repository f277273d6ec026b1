// Package lock provides a Redis lease lock so that only one process runs a
// periodic scheduler task at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotHeld = errors.New("lock not held")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker interface {
	// TryAcquire returns (nil, nil) when another holder owns key.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}

type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// Lease is a held lock. It expires on its own after the TTL.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	fullKey := l.prefix + key
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", fullKey, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{client: l.client, key: fullKey, token: token}, nil
}

func (l *Lease) Key() string { return l.key }

// Release frees the lock. It returns ErrNotHeld when the lease already
// expired or was taken over.
func (l *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
