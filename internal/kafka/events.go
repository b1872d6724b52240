package kafka

import (
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-seckill-orders.git/internal/seckill"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	TopicOrderFulfilled = "order.fulfilled"
	EventOrderFulfilled = "OrderFulfilled"
)

// Envelope is the versioned wrapper every published event travels in.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderFulfilledPayload struct {
	OrderID   int64 `json:"order_id"`
	UserID    int64 `json:"user_id"`
	VoucherID int64 `json:"voucher_id"`
}

// EventPublisher adapts the async Producer to the worker's publish hook.
// Downstream systems (notifications, analytics) learn about durably persisted
// orders from this topic; the original caller never does.
type EventPublisher struct {
	Producer *Producer
	Service  string
}

func (e *EventPublisher) PublishOrderFulfilled(t seckill.Ticket) {
	correlationID := itoa(t.OrderID)
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderFulfilled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		CorrelationID: correlationID,
		Payload: MustMarshal(OrderFulfilledPayload{
			OrderID:   t.OrderID,
			UserID:    t.UserID,
			VoucherID: t.VoucherID,
		}),
	}
	// Partition by order id so replays of one order keep their relative order.
	e.Producer.Publish([]byte(correlationID), MustMarshal(ev),
		kafka.Header{Key: "x-event-type", Value: []byte(EventOrderFulfilled)},
		kafka.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
