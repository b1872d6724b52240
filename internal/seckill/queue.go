package seckill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Wire schema of a queued ticket. Field names are shared with the admission
// script's XADD; bump the version when they change so producer and consumer
// cannot drift silently.
const (
	schemaVersion  = "1"
	fieldVersion   = "v"
	fieldOrderID   = "orderId"
	fieldUserID    = "userId"
	fieldVoucherID = "voucherId"
)

// Ticket is the transient reservation record that travels the queue until the
// worker turns it into a durable order row.
type Ticket struct {
	OrderID   int64
	UserID    int64
	VoucherID int64
}

// Message pairs a Ticket with its stream id; acknowledgement is by stream id,
// not order id.
type Message struct {
	ID     string
	Ticket Ticket
}

// Queue wraps a Redis stream with consumer-group read semantics. Delivery is
// at-least-once: a message stays in the group's pending list until acked.
type Queue struct {
	rdb      redis.UniversalClient
	stream   string
	group    string
	consumer string
	log      *zap.Logger
}

func NewQueue(rdb redis.UniversalClient, stream, group, consumer string, log *zap.Logger) *Queue {
	return &Queue{rdb: rdb, stream: stream, group: group, consumer: consumer, log: log}
}

// EnsureGroup creates the stream and consumer group if needed. Safe to call
// on every startup.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("queue: create group %s on %s: %w", q.group, q.stream, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && redis.HasErrorPrefix(err, "BUSYGROUP")
}

// ReadNew delivers unread messages and marks them pending for this consumer.
// The block duration is bounded so callers can re-check shutdown conditions.
func (q *Queue) ReadNew(ctx context.Context, count int64, block time.Duration) ([]Message, error) {
	return q.read(ctx, ">", count, block)
}

// ReadPending re-delivers this consumer's unacknowledged messages from the
// start of its pending list.
func (q *Queue) ReadPending(ctx context.Context, count int64) ([]Message, error) {
	return q.read(ctx, "0", count, 0)
}

func (q *Queue) read(ctx context.Context, offset string, count int64, block time.Duration) ([]Message, error) {
	args := &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, offset},
		Count:    count,
	}
	if block > 0 {
		args.Block = block
	} else {
		args.Block = -1 // don't wait when scanning the pending list
	}

	res, err := q.rdb.XReadGroup(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: read %s offset %s: %w", q.stream, offset, err)
	}

	var out []Message
	for _, s := range res {
		for _, xm := range s.Messages {
			m, err := parseMessage(xm)
			if err != nil {
				// Ack and drop: an unparseable entry acked here cannot wedge
				// the pending list, while the rest of the batch still drains.
				q.log.Warn("discarding unparseable message", zap.String("message_id", xm.ID), zap.Error(err))
				if err := q.rdb.XAck(ctx, q.stream, q.group, xm.ID).Err(); err != nil {
					return nil, fmt.Errorf("queue: ack unparseable %s: %w", xm.ID, err)
				}
				continue
			}
			out = append(out, m)
		}
	}
	return out, nil
}

// Ack removes a message from the group's pending set.
func (q *Queue) Ack(ctx context.Context, id string) error {
	if err := q.rdb.XAck(ctx, q.stream, q.group, id).Err(); err != nil {
		return fmt.Errorf("queue: ack %s: %w", id, err)
	}
	return nil
}

func parseMessage(xm redis.XMessage) (Message, error) {
	if v, _ := xm.Values[fieldVersion].(string); v != schemaVersion {
		return Message{}, fmt.Errorf("queue: message %s: unsupported schema version %q", xm.ID, xm.Values[fieldVersion])
	}
	t := Ticket{}
	for field, dst := range map[string]*int64{
		fieldOrderID:   &t.OrderID,
		fieldUserID:    &t.UserID,
		fieldVoucherID: &t.VoucherID,
	} {
		raw, ok := xm.Values[field].(string)
		if !ok {
			return Message{}, fmt.Errorf("queue: message %s: missing field %q", xm.ID, field)
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Message{}, fmt.Errorf("queue: message %s: field %q: %w", xm.ID, field, err)
		}
		*dst = n
	}
	return Message{ID: xm.ID, Ticket: t}, nil
}
