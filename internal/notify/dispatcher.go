package notify

import (
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/adisetyo/go-storefront-orders/internal/kafka"
)

// Event types the storefront emits. The mail service owns templates and
// retries; this side only enqueues.
const (
	EventOrderConfirmed  = "order_confirmed"
	EventPaymentApproved = "payment_approved"
	EventPaymentRejected = "payment_rejected"
	EventOrderCancelled  = "order_cancelled"
	EventOrderShipped    = "order_shipped"
	EventOrderDelivered  = "order_delivered"
)

const TopicNotifications = "storefront.notifications"

type Envelope struct {
	EventID      string            `json:"event_id"`
	EventType    string            `json:"event_type"`
	EventVersion int               `json:"event_version"`
	OccurredAt   time.Time         `json:"occurred_at"`
	Producer     string            `json:"producer"`
	OrderID      string            `json:"order_id"`
	Context      map[string]string `json:"context,omitempty"`
}

// PartitionKey keeps all events of one order in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

// Dispatcher publishes fire-and-forget notification events. Enqueue never
// blocks the caller on broker acknowledgement.
type Dispatcher struct {
	Producer *kafkax.Producer
	Service  string
}

func (d *Dispatcher) Enqueue(eventType, orderID string, kv map[string]string) {
	if d == nil || d.Producer == nil {
		return
	}
	ev := Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     d.Service,
		OrderID:      orderID,
		Context:      kv,
	}
	d.Producer.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
