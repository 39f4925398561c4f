package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultLockTTL = 90 * time.Second

// ErrLockHeld is returned when another process already owns the scheduler lock.
var ErrLockHeld = errors.New("scheduler lock is held by another instance")

var refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// InstanceLock guarantees a single active scheduler process. The dispatch
// model assumes exactly one poller; the lock turns that deployment assumption
// into something enforced at startup instead of merely documented.
type InstanceLock struct {
	client *goredis.Client
	key    string
	owner  string
	ttl    time.Duration
}

func NewInstanceLock(client *goredis.Client, key string, ttl time.Duration) (*InstanceLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	return &InstanceLock{
		client: client,
		key:    strings.TrimSpace(key),
		owner:  uuid.NewString(),
		ttl:    ttl,
	}, nil
}

// Acquire takes the lock or fails fast with ErrLockHeld. It never waits: a
// second instance starting up is a deployment error, not a queueing problem.
func (l *InstanceLock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire scheduler lock: %w", err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Refresh extends the lease if this instance still owns it.
func (l *InstanceLock) Refresh(ctx context.Context) error {
	res, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh scheduler lock: %w", err)
	}
	if res == 0 {
		return ErrLockHeld
	}
	return nil
}

// Release drops the lock if this instance owns it. Safe to call after the
// lease already expired.
func (l *InstanceLock) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int(); err != nil {
		return fmt.Errorf("failed to release scheduler lock: %w", err)
	}
	return nil
}

// KeepAlive refreshes the lease on a fraction of the TTL until the context
// is canceled. Losing the lease is fatal for the caller: it means a second
// instance may be polling.
func (l *InstanceLock) KeepAlive(ctx context.Context) error {
	interval := l.ttl / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
