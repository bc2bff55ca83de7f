package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sweepLockKey = "helpdesk:sla_sweep:lock"

// releaseScript deletes the lock only when it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock serialises SLA sweeps across instances.
type SweepLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewSweepLock creates a SweepLock. ttl bounds how long a crashed holder blocks others.
func NewSweepLock(client redis.UniversalClient, ttl time.Duration) *SweepLock {
	if ttl <= 0 {
		ttl = 4 * time.Minute
	}
	return &SweepLock{client: client, key: sweepLockKey, ttl: ttl}
}

// TryAcquire attempts to take the lock. It returns a release func when acquired.
func (l *SweepLock) TryAcquire(ctx context.Context) (bool, func(context.Context) error, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, nil, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !acquired {
		return false, nil, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release sweep lock: %w", err)
		}
		return nil
	}
	return true, release, nil
}
