package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another process owns the run lock
var ErrLockHeld = errors.New("run lock held by another process")

// releaseScript deletes the key only when the caller still owns it
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RunLock guards a run id so only one process executes it at a time
// ⭐ SSOT: 런 단위 단일 작성자 보장은 여기서만
type RunLock struct {
	client *Client
	ttl    time.Duration
}

// NewRunLock creates a run lock helper
func NewRunLock(client *Client, ttl time.Duration) *RunLock {
	return &RunLock{client: client, ttl: ttl}
}

// Acquire takes the lock for runID and returns a release func.
// Redis 비활성화 시 항상 성공 (no-op)
func (l *RunLock) Acquire(ctx context.Context, runID string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !l.client.Enabled() {
		return noop, nil
	}

	key := l.client.Key("runlock", runID)
	token := uuid.NewString()

	ok, err := l.client.Redis().SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return noop, fmt.Errorf("run lock acquire failed: %w", err)
	}
	if !ok {
		return noop, fmt.Errorf("%w: %s", ErrLockHeld, runID)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client.Redis(), []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("run lock release failed: %w", err)
		}
		return nil
	}
	return release, nil
}
