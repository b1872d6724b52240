package seckill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-seckill-orders.git/internal/orders"
	"github.com/ariefcatur/go-seckill-orders.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu          sync.Mutex
	stock       map[int64]int
	rows        map[[2]int64]int64 // (userID, voucherID) -> orderID
	inserts     int
	failInserts int // induce this many insert failures
}

func newFakeStore(voucherID int64, stock int) *fakeStore {
	return &fakeStore{
		stock: map[int64]int{voucherID: stock},
		rows:  map[[2]int64]int64{},
	}
}

func (f *fakeStore) ExistsOrder(ctx context.Context, userID, voucherID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[[2]int64{userID, voucherID}]
	return ok, nil
}

func (f *fakeStore) ReserveStock(ctx context.Context, voucherID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stock[voucherID] <= 0 {
		return false, nil
	}
	f.stock[voucherID]--
	return true, nil
}

func (f *fakeStore) InsertOrder(ctx context.Context, o *orders.VoucherOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInserts > 0 {
		f.failInserts--
		f.stock[o.VoucherID]++ // refund the reserved unit like a rolled-back tx
		return errors.New("store unavailable")
	}
	f.inserts++
	f.rows[[2]int64{o.UserID, o.VoucherID}] = o.ID
	return nil
}

type recordedEvents struct {
	mu      sync.Mutex
	tickets []Ticket
}

func (r *recordedEvents) PublishOrderFulfilled(t Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets = append(r.tickets, t)
}

func newWorkerForTest(t *testing.T, store *fakeStore) (*redis.Client, *Worker, *recordedEvents) {
	t.Helper()
	rdb, q := newQueueForTest(t)
	events := &recordedEvents{}
	w := &Worker{
		Queue:     q,
		Store:     store,
		Rdb:       rdb,
		Events:    events,
		Log:       zap.NewNop(),
		ReadCount: 10,
		ReadBlock: 10 * time.Millisecond,
		RetryWait: time.Millisecond,
	}
	return rdb, w, events
}

func pendingCount(t *testing.T, rdb *redis.Client) int {
	t.Helper()
	p, err := rdb.XPending(context.Background(), "stream.orders", "g1").Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	return int(p.Count)
}

func TestWorkerFulfillsTicket(t *testing.T) {
	store := newFakeStore(10, 5)
	rdb, w, events := newWorkerForTest(t, store)
	ctx := context.Background()

	enqueue(t, rdb, Ticket{OrderID: 42, UserID: 7, VoucherID: 10})

	if st := w.drainOnce(ctx); st != stateDraining {
		t.Fatalf("drain state = %v, want draining", st)
	}

	if store.inserts != 1 {
		t.Fatalf("inserts = %d, want 1", store.inserts)
	}
	if got := store.rows[[2]int64{7, 10}]; got != 42 {
		t.Fatalf("persisted order id = %d, want 42", got)
	}
	if store.stock[10] != 4 {
		t.Fatalf("persisted stock = %d, want 4", store.stock[10])
	}
	if n := pendingCount(t, rdb); n != 0 {
		t.Fatalf("pending after ack = %d, want 0", n)
	}
	if len(events.tickets) != 1 || events.tickets[0].OrderID != 42 {
		t.Fatalf("fulfilled events = %+v, want one for order 42", events.tickets)
	}
}

func TestWorkerRecoversAfterCrashBeforeAck(t *testing.T) {
	store := newFakeStore(10, 5)
	rdb, w, _ := newWorkerForTest(t, store)
	ctx := context.Background()

	enqueue(t, rdb, Ticket{OrderID: 43, UserID: 8, VoucherID: 10})

	// Simulate a consumer that read the message and died before acking.
	if _, err := w.Queue.ReadNew(ctx, 10, 10*time.Millisecond); err != nil {
		t.Fatalf("read new: %v", err)
	}
	if n := pendingCount(t, rdb); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	// A recovery pass on restart drains the pending list.
	if st := w.recoverOnce(ctx); st != stateRecovering {
		t.Fatalf("recover state = %v, want recovering (batch processed)", st)
	}
	if st := w.recoverOnce(ctx); st != stateDraining {
		t.Fatalf("recover state = %v, want draining (pending empty)", st)
	}

	if store.inserts != 1 {
		t.Fatalf("inserts = %d, want exactly 1", store.inserts)
	}
	if n := pendingCount(t, rdb); n != 0 {
		t.Fatalf("pending after recovery = %d, want 0", n)
	}
}

func TestWorkerDuplicateDeliveryIsSafe(t *testing.T) {
	store := newFakeStore(10, 5)
	rdb, w, events := newWorkerForTest(t, store)
	ctx := context.Background()

	// Order already persisted by a previous delivery.
	store.rows[[2]int64{9, 10}] = 44

	enqueue(t, rdb, Ticket{OrderID: 44, UserID: 9, VoucherID: 10})
	if st := w.drainOnce(ctx); st != stateDraining {
		t.Fatalf("drain state = %v, want draining", st)
	}

	if store.inserts != 0 {
		t.Fatalf("inserts = %d, want 0 (duplicate must not re-insert)", store.inserts)
	}
	if store.stock[10] != 5 {
		t.Fatalf("stock = %d, want untouched 5", store.stock[10])
	}
	if n := pendingCount(t, rdb); n != 0 {
		t.Fatalf("duplicate not acked, pending = %d", n)
	}
	if len(events.tickets) != 0 {
		t.Fatalf("duplicate must not publish events, got %+v", events.tickets)
	}
}

func TestWorkerLockContentionLeavesMessagePending(t *testing.T) {
	store := newFakeStore(10, 5)
	rdb, w, _ := newWorkerForTest(t, store)
	ctx := context.Background()

	// Another consumer holds this buyer's lock.
	lockKey := fmt.Sprintf(redisx.KeyOrderLock, int64(7))
	if err := rdb.Set(ctx, lockKey, "other-owner", time.Minute).Err(); err != nil {
		t.Fatalf("hold lock: %v", err)
	}

	enqueue(t, rdb, Ticket{OrderID: 45, UserID: 7, VoucherID: 10})
	if st := w.drainOnce(ctx); st != stateRecovering {
		t.Fatalf("drain state = %v, want recovering on contention", st)
	}
	if store.inserts != 0 {
		t.Fatalf("inserts = %d, want 0 while lock is held", store.inserts)
	}
	if n := pendingCount(t, rdb); n != 1 {
		t.Fatalf("pending = %d, want 1 (message must not be lost)", n)
	}

	// Holder goes away; recovery retries the same message.
	if err := rdb.Del(ctx, lockKey).Err(); err != nil {
		t.Fatalf("release lock: %v", err)
	}
	if st := w.recoverOnce(ctx); st != stateRecovering {
		t.Fatalf("recover state = %v, want recovering", st)
	}
	if store.inserts != 1 {
		t.Fatalf("inserts = %d, want 1 after retry", store.inserts)
	}
	if n := pendingCount(t, rdb); n != 0 {
		t.Fatalf("pending after retry = %d, want 0", n)
	}
}

func TestWorkerAcksWhenPersistedStockRefuses(t *testing.T) {
	store := newFakeStore(10, 0)
	rdb, w, events := newWorkerForTest(t, store)
	ctx := context.Background()

	enqueue(t, rdb, Ticket{OrderID: 47, UserID: 12, VoucherID: 10})

	// Refused decrement is terminal: logged and acked, not retried forever.
	if st := w.drainOnce(ctx); st != stateDraining {
		t.Fatalf("drain state = %v, want draining", st)
	}
	if store.inserts != 0 {
		t.Fatalf("inserts = %d, want 0 when stock refuses", store.inserts)
	}
	if len(events.tickets) != 0 {
		t.Fatalf("refused ticket must not publish events, got %+v", events.tickets)
	}
	if n := pendingCount(t, rdb); n != 0 {
		t.Fatalf("pending = %d, want 0 (refused ticket must not poison the queue)", n)
	}
}

func TestWorkerRetriesInsertFailure(t *testing.T) {
	store := newFakeStore(10, 5)
	rdb, w, _ := newWorkerForTest(t, store)
	ctx := context.Background()

	store.failInserts = 1
	enqueue(t, rdb, Ticket{OrderID: 46, UserID: 11, VoucherID: 10})

	if st := w.drainOnce(ctx); st != stateRecovering {
		t.Fatalf("drain state = %v, want recovering on store failure", st)
	}
	if st := w.recoverOnce(ctx); st != stateRecovering {
		t.Fatalf("recover state = %v, want recovering", st)
	}

	if store.inserts != 1 {
		t.Fatalf("inserts = %d, want exactly 1", store.inserts)
	}
	if store.stock[10] != 4 {
		t.Fatalf("stock = %d, want 4", store.stock[10])
	}
	if n := pendingCount(t, rdb); n != 0 {
		t.Fatalf("pending = %d, want 0", n)
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	store := newFakeStore(10, 5)
	_, w, _ := newWorkerForTest(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v, want nil on shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
