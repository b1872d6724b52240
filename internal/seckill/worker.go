package seckill

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-seckill-orders.git/internal/lock"
	"github.com/ariefcatur/go-seckill-orders.git/internal/metrics"
	"github.com/ariefcatur/go-seckill-orders.git/internal/orders"
	"github.com/ariefcatur/go-seckill-orders.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OrderStore is the slice of the record store the worker needs. The store is
// only ever mutated inside the per-buyer lock.
type OrderStore interface {
	ExistsOrder(ctx context.Context, userID, voucherID int64) (bool, error)
	ReserveStock(ctx context.Context, voucherID int64) (bool, error)
	InsertOrder(ctx context.Context, o *orders.VoucherOrder) error
}

// Publisher matches the kafka producer's fire-and-forget Publish; nil means
// no downstream events.
type Publisher interface {
	PublishOrderFulfilled(t Ticket)
}

type workerState int

const (
	// Draining: blocking-read new messages from the group.
	stateDraining workerState = iota
	// Recovering: re-reading this consumer's pending list until it is empty.
	stateRecovering
)

// Worker is the single continuous consumer that converts queued tickets into
// durable order rows. Any failure flips it from draining into recovery
// instead of crashing; recovery retries the pending list until drained.
type Worker struct {
	Queue     *Queue
	Store     OrderStore
	Rdb       redis.UniversalClient
	Events    Publisher
	Log       *zap.Logger
	ReadCount int64
	ReadBlock time.Duration

	// RetryWait is the backoff between recovery attempts.
	RetryWait time.Duration
}

// Run loops until ctx is cancelled. The blocking read is bounded by
// ReadBlock, so cancellation is observed at each read boundary.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Queue.EnsureGroup(ctx); err != nil {
		return err
	}
	if w.ReadCount <= 0 {
		w.ReadCount = 1
	}
	if w.ReadBlock <= 0 {
		w.ReadBlock = 2 * time.Second
	}
	if w.RetryWait <= 0 {
		w.RetryWait = 50 * time.Millisecond
	}

	st := stateDraining
	for {
		if ctx.Err() != nil {
			return nil
		}
		switch st {
		case stateDraining:
			st = w.drainOnce(ctx)
		case stateRecovering:
			st = w.recoverOnce(ctx)
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) workerState {
	msgs, err := w.Queue.ReadNew(ctx, w.ReadCount, w.ReadBlock)
	if err != nil {
		if ctx.Err() != nil {
			return stateDraining
		}
		w.Log.Error("queue read failed", zap.Error(err))
		metrics.RecoveryPasses.Inc()
		return stateRecovering
	}
	for _, m := range msgs {
		if err := w.createOrder(ctx, m.Ticket); err != nil {
			w.Log.Error("order creation failed, entering recovery",
				zap.String("message_id", m.ID),
				zap.Int64("order_id", m.Ticket.OrderID),
				zap.Error(err))
			metrics.RecoveryPasses.Inc()
			return stateRecovering
		}
		if err := w.Queue.Ack(ctx, m.ID); err != nil {
			w.Log.Error("ack failed, entering recovery", zap.String("message_id", m.ID), zap.Error(err))
			metrics.RecoveryPasses.Inc()
			return stateRecovering
		}
	}
	return stateDraining
}

// recoverOnce processes one batch from the pending list. Empty pending list
// means recovery is done and the worker returns to draining new messages.
func (w *Worker) recoverOnce(ctx context.Context) workerState {
	msgs, err := w.Queue.ReadPending(ctx, w.ReadCount)
	if err != nil {
		if ctx.Err() != nil {
			return stateRecovering
		}
		w.Log.Error("pending read failed", zap.Error(err))
		w.sleep(ctx)
		return stateRecovering
	}
	if len(msgs) == 0 {
		return stateDraining
	}
	for _, m := range msgs {
		if err := w.createOrder(ctx, m.Ticket); err != nil {
			w.Log.Error("pending order retry failed",
				zap.String("message_id", m.ID),
				zap.Int64("order_id", m.Ticket.OrderID),
				zap.Error(err))
			w.sleep(ctx)
			return stateRecovering
		}
		if err := w.Queue.Ack(ctx, m.ID); err != nil {
			w.Log.Error("pending ack failed", zap.String("message_id", m.ID), zap.Error(err))
			w.sleep(ctx)
			return stateRecovering
		}
	}
	return stateRecovering
}

// createOrder persists one ticket. The per-buyer lease lock serializes
// redelivered copies of the same ticket and distinct tickets for the same
// buyer; inside it an existence query makes duplicate delivery a no-op.
func (w *Worker) createOrder(ctx context.Context, t Ticket) error {
	l := lock.New(w.Rdb, fmt.Sprintf(redisx.KeyOrderLock, t.UserID))
	ok, err := l.TryLock(ctx, redisx.TTLOrderLock)
	if err != nil {
		return err
	}
	if !ok {
		metrics.LockContention.Inc()
		return ErrLockContention
	}
	defer func() {
		if err := l.Unlock(context.WithoutCancel(ctx)); err != nil {
			w.Log.Warn("buyer lock release failed", zap.Int64("user_id", t.UserID), zap.Error(err))
		}
	}()

	exists, err := w.Store.ExistsOrder(ctx, t.UserID, t.VoucherID)
	if err != nil {
		return err
	}
	if exists {
		// Already fulfilled on an earlier delivery; ack without re-inserting.
		w.Log.Info("order already persisted",
			zap.Int64("order_id", t.OrderID), zap.Int64("user_id", t.UserID))
		return nil
	}

	reserved, err := w.Store.ReserveStock(ctx, t.VoucherID)
	if err != nil {
		return err
	}
	if !reserved {
		// The admission script should make this unreachable; if the persisted
		// column still refuses, the ticket is terminal and must not poison
		// the queue.
		w.Log.Warn("persisted stock refused decrement",
			zap.Int64("order_id", t.OrderID), zap.Int64("voucher_id", t.VoucherID))
		return nil
	}

	if err := w.Store.InsertOrder(ctx, &orders.VoucherOrder{
		ID:        t.OrderID,
		UserID:    t.UserID,
		VoucherID: t.VoucherID,
	}); err != nil {
		return err
	}

	metrics.OrdersFulfilled.Inc()
	if w.Events != nil {
		w.Events.PublishOrderFulfilled(t)
	}
	w.Log.Info("order fulfilled",
		zap.Int64("order_id", t.OrderID),
		zap.Int64("user_id", t.UserID),
		zap.Int64("voucher_id", t.VoucherID))
	return nil
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.RetryWait):
	}
}
