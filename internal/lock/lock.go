// Package lock implements a single-attempt distributed lease lock on Redis.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release must compare the owner token and delete in one step. A get-then-del
// from the application side can delete a lock that expired and was re-acquired
// by someone else in between.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// processPrefix distinguishes owners across processes; the per-Lock uuid
// distinguishes owners within one.
var processPrefix = uuid.NewString()

// Lock is a single-use handle for one key. TryLock does not block or retry;
// callers wanting backoff loop themselves.
type Lock struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

func New(rdb redis.UniversalClient, key string) *Lock {
	return &Lock{
		rdb:   rdb,
		key:   key,
		token: processPrefix + "-" + uuid.NewString(),
	}
}

// TryLock attempts a single SET NX PX. The lease bounds how long a crashed
// holder can keep others out.
func (l *Lock) TryLock(ctx context.Context, lease time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, lease).Result()
	if err != nil {
		return false, fmt.Errorf("lock: acquire %s: %w", l.key, err)
	}
	return ok, nil
}

// Unlock releases the lock only if this handle still owns it. Releasing after
// the lease already expired is a no-op.
func (l *Lock) Unlock(ctx context.Context) error {
	if err := unlockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("lock: release %s: %w", l.key, err)
	}
	return nil
}
