package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "apartment:"

var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

// RedisLock is a single-owner lease shared by every server instance.
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (r *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, lockKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("setnx %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes the key only while it still holds token, so an expired
// lease taken over by another request is left alone.
func (r *RedisLock) Release(ctx context.Context, key, token string) error {
	if err := releaseLockScript.Run(ctx, r.client, []string{lockKeyPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
