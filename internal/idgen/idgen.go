// Package idgen issues globally unique, time-ordered ids backed by a shared
// Redis counter, so ids stay unique across processes.
package idgen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ariefcatur/go-seckill-orders.git/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Layout: 1 sign bit (always 0) | 31 bit seconds since epoch0 | 32 bit
// per-domain per-day sequence. Ids within one second differ only in the low
// 32 bits; across seconds the high bits order them.
const (
	epoch0    = 1640995200 // 2022-01-01T00:00:00Z
	countBits = 32
)

// ErrSequenceOverflow is returned when a domain exceeds 2^32-1 ids in a single
// day. Letting the counter spill into the timestamp bits would break ordering
// and uniqueness, so the call fails instead.
var ErrSequenceOverflow = errors.New("idgen: daily sequence exhausted")

type Worker struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func New(rdb redis.UniversalClient) *Worker {
	return &Worker{rdb: rdb, now: time.Now}
}

// NextID returns the next id for domain. Ids are monotonically non-decreasing
// per domain and unique across all callers sharing the Redis instance.
func (w *Worker) NextID(ctx context.Context, domain string) (int64, error) {
	now := w.now().UTC()
	timestamp := now.Unix() - epoch0

	// Day-scoped counter: bounds each key's growth and doubles as a daily
	// order-volume stat.
	date := now.Format("2006:01:02")
	key := fmt.Sprintf(redisx.KeyIDSequence, domain, date)
	seq, err := w.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("idgen: increment sequence: %w", err)
	}
	if seq > math.MaxUint32 {
		return 0, ErrSequenceOverflow
	}

	return timestamp<<countBits | seq, nil
}
