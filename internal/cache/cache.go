// Package cache is a read-through cache-aside helper over Redis with two
// stampede-control strategies (mutex rebuild, logical expiry) and negative
// caching of missing records.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-seckill-orders.git/internal/lock"
	"github.com/ariefcatur/go-seckill-orders.git/internal/metrics"
	"github.com/ariefcatur/go-seckill-orders.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrNotFound is returned for a negative-sentinel hit or a fallback that
	// yielded nothing: the record definitively does not exist.
	ErrNotFound = errors.New("cache: record not found")

	// ErrNotCached is returned by the logical-expiry strategy on a true miss.
	// That mode has no fallback path; entries must be pre-populated.
	ErrNotCached = errors.New("cache: entry not populated")

	// ErrRebuildContended is returned when the mutex strategy could not win
	// the rebuild lock within its retry budget.
	ErrRebuildContended = errors.New("cache: rebuild lock contended")
)

const (
	rebuildRetryWait   = 50 * time.Millisecond
	maxRebuildAttempts = 100

	asyncRebuildWorkers = 10
)

type Client struct {
	rdb redis.UniversalClient
	log *zap.Logger

	// Bounds concurrent async rebuilds so a burst of expiries cannot fan out
	// into an unbounded number of store queries.
	rebuilds *semaphore.Weighted

	// Mutex-strategy retry budget.
	retryWait   time.Duration
	maxAttempts int
}

func New(rdb redis.UniversalClient, log *zap.Logger) *Client {
	return &Client{
		rdb:         rdb,
		log:         log,
		rebuilds:    semaphore.NewWeighted(asyncRebuildWorkers),
		retryWait:   rebuildRetryWait,
		maxAttempts: maxRebuildAttempts,
	}
}

// Set stores value as JSON under key with a plain store-level TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// entry wraps a payload with an application-level staleness timestamp,
// independent of any store TTL.
type entry struct {
	Data     json.RawMessage `json:"data"`
	ExpireAt time.Time       `json:"expireAt"`
}

// SetWithLogicalExpire stores value without a store TTL; staleness is tracked
// by the embedded expiry instead, so readers never see a hard miss.
func (c *Client) SetWithLogicalExpire(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	b, err := json.Marshal(entry{Data: data, ExpireAt: time.Now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("cache: marshal entry %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, b, 0).Err()
}

// Delete invalidates key. Called on writes to the underlying record.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// GetWithPassThrough reads key, falling back to fallback on a miss. A nil
// result from fallback is cached as an empty sentinel with a short TTL so
// repeated lookups of nonexistent ids do not reach the backing store.
func GetWithPassThrough[T any](ctx context.Context, c *Client, key string, ttl time.Duration, fallback func(context.Context) (*T, error)) (*T, error) {
	if v, found, err := lookup[T](ctx, c, key); err != nil || found {
		return v, err
	}

	v, err := fallback(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if err := c.rdb.Set(ctx, key, "", redisx.TTLNullCache).Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return nil, err
	}
	metrics.CacheRebuilds.Inc()
	return v, nil
}

// GetWithMutex is GetWithPassThrough with stampede control: concurrent misses
// elect one rebuilder via the rebuild lock, the rest wait and re-read. The
// retry budget is bounded; the lock's own lease bounds each individual wait.
func GetWithMutex[T any](ctx context.Context, c *Client, key string, ttl time.Duration, fallback func(context.Context) (*T, error)) (*T, error) {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if v, found, err := lookup[T](ctx, c, key); err != nil || found {
			return v, err
		}

		mu := lock.New(c.rdb, fmt.Sprintf(redisx.KeyCacheLock, key))
		ok, err := mu.TryLock(ctx, redisx.TTLCacheLock)
		if err != nil {
			return nil, err
		}
		if !ok {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryWait):
			}
			continue
		}

		v, found, err := rebuild(ctx, c, mu, key, ttl, fallback)
		if err != nil || found {
			return v, err
		}
	}
	return nil, ErrRebuildContended
}

func rebuild[T any](ctx context.Context, c *Client, mu *lock.Lock, key string, ttl time.Duration, fallback func(context.Context) (*T, error)) (*T, bool, error) {
	defer func() {
		if err := mu.Unlock(context.WithoutCancel(ctx)); err != nil {
			c.log.Warn("cache rebuild unlock failed", zap.String("key", key), zap.Error(err))
		}
	}()

	// Someone may have rebuilt between our miss and winning the lock.
	if v, found, err := lookup[T](ctx, c, key); err != nil || found {
		return v, true, err
	}

	v, err := fallback(ctx)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		if err := c.rdb.Set(ctx, key, "", redisx.TTLNullCache).Err(); err != nil {
			return nil, false, err
		}
		return nil, true, ErrNotFound
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return nil, false, err
	}
	metrics.CacheRebuilds.Inc()
	return v, true, nil
}

// GetWithLogicalExpire never blocks the caller on a rebuild: a stale entry is
// returned as-is, and at most one async refresh per expiry episode is
// scheduled behind the rebuild lock.
func GetWithLogicalExpire[T any](ctx context.Context, c *Client, key string, ttl time.Duration, fallback func(context.Context) (*T, error)) (*T, error) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, err
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("cache: decode entry %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	if time.Now().Before(e.ExpireAt) {
		return &v, nil
	}

	// Stale. Whoever wins the lock refreshes in the background; everyone
	// keeps serving the stale value meanwhile.
	mu := lock.New(c.rdb, fmt.Sprintf(redisx.KeyCacheLock, key))
	ok, err := mu.TryLock(ctx, redisx.TTLCacheLock)
	if err != nil || !ok {
		return &v, nil
	}
	if !c.rebuilds.TryAcquire(1) {
		// Pool saturated; give the lock back and let a later reader retry.
		_ = mu.Unlock(ctx)
		return &v, nil
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		defer c.rebuilds.Release(1)
		defer func() {
			if err := mu.Unlock(bg); err != nil {
				c.log.Warn("cache rebuild unlock failed", zap.String("key", key), zap.Error(err))
			}
		}()
		nv, err := fallback(bg)
		if err != nil {
			c.log.Error("async cache rebuild failed", zap.String("key", key), zap.Error(err))
			return
		}
		if nv == nil {
			// Record gone from the store; evict the stale entry rather than
			// caching a phantom zero value.
			if err := c.Delete(bg, key); err != nil {
				c.log.Warn("stale entry eviction failed", zap.String("key", key), zap.Error(err))
			}
			return
		}
		if err := c.SetWithLogicalExpire(bg, key, nv, ttl); err != nil {
			c.log.Error("async cache write failed", zap.String("key", key), zap.Error(err))
			return
		}
		metrics.CacheRebuilds.Inc()
	}()

	return &v, nil
}

// lookup returns (value, hit, err); an empty-string sentinel hit yields
// (nil, true, ErrNotFound).
func lookup[T any](ctx context.Context, c *Client, key string) (*T, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if raw == "" {
		metrics.CacheNegativeHits.Inc()
		return nil, true, ErrNotFound
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return &v, true, nil
}
