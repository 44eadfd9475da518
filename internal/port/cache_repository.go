package port

import (
	"context"
	"time"
)

type OrderLock interface {
	// Acquire takes the lock unless it is already held, returns a token for Release
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)

	// Release drops the lock only if token still owns it
	Release(ctx context.Context, key, token string) error
}
