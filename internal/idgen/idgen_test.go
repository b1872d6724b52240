package idgen

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-seckill-orders.git/internal/redisx"
	"github.com/redis/go-redis/v9"
)

func newWorkerForTest(t *testing.T) (*miniredis.Miniredis, *Worker) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return m, New(client)
}

func TestNextIDConcurrentUniqueness(t *testing.T) {
	_, w := newWorkerForTest(t)
	ctx := context.Background()

	const n = 200
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := w.NextID(ctx, "order")
			if err != nil {
				t.Errorf("next id: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct ids, got %d", n, len(seen))
	}
}

func TestNextIDOrderedAcrossSeconds(t *testing.T) {
	_, w := newWorkerForTest(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return base }
	early, err := w.NextID(ctx, "order")
	if err != nil {
		t.Fatalf("next id: %v", err)
	}

	w.now = func() time.Time { return base.Add(3 * time.Second) }
	late, err := w.NextID(ctx, "order")
	if err != nil {
		t.Fatalf("next id: %v", err)
	}

	if late <= early {
		t.Fatalf("expected later second to sort higher: early=%d late=%d", early, late)
	}
	if gotSec := late>>countBits - early>>countBits; gotSec != 3 {
		t.Fatalf("expected 3s timestamp gap, got %d", gotSec)
	}
}

func TestNextIDDomainsIndependent(t *testing.T) {
	_, w := newWorkerForTest(t)
	ctx := context.Background()

	a1, _ := w.NextID(ctx, "order")
	b1, _ := w.NextID(ctx, "refund")
	if a1&math.MaxUint32 != 1 || b1&math.MaxUint32 != 1 {
		t.Fatalf("expected both domains to start at sequence 1: %d %d", a1&math.MaxUint32, b1&math.MaxUint32)
	}
}

func TestNextIDSequenceOverflow(t *testing.T) {
	m, w := newWorkerForTest(t)
	ctx := context.Background()

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }
	key := fmt.Sprintf(redisx.KeyIDSequence, "order", fixed.Format("2006:01:02"))
	m.Set(key, fmt.Sprintf("%d", uint64(math.MaxUint32)))

	if _, err := w.NextID(ctx, "order"); err != ErrSequenceOverflow {
		t.Fatalf("expected ErrSequenceOverflow, got %v", err)
	}
}
