package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// LockRepository hands out expiring named locks. With a Redis client the lock is shared across
// processes; without one it only guards the current process.
type LockRepository struct {
	client *redis.Client
	prefix string

	mu    sync.Mutex
	local map[string]localLock
	now   func() time.Time
}

type localLock struct {
	token   string
	expires time.Time
}

// NewLockRepository constructs a lock repository. client may be nil.
func NewLockRepository(client *redis.Client, prefix string) *LockRepository {
	if prefix == "" {
		prefix = "lock:"
	}
	return &LockRepository{client: client, prefix: prefix, local: make(map[string]localLock), now: time.Now}
}

// Acquire takes the lock if nobody holds it. It reports false when the lock is held elsewhere.
func (r *LockRepository) Acquire(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	key := r.prefix + name
	if r.client == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if held, ok := r.local[key]; ok && r.now().Before(held.expires) {
			return false, nil
		}
		r.local[key] = localLock{token: token, expires: r.now().Add(ttl)}
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// Release drops the lock if token still owns it.
func (r *LockRepository) Release(ctx context.Context, name, token string) error {
	key := r.prefix + name
	if r.client == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if held, ok := r.local[key]; ok && held.token == token {
			delete(r.local, key)
		}
		return nil
	}
	if err := releaseLockScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release lock %s: %w", name, err)
	}
	return nil
}
