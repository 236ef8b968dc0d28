package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/pkg/outbox"
	"github.com/dmehra2102/food-order-platform/pkg/tracing"
)

const AggregateOrder = "order"

func createdEvent(traceparent string) EventFunc {
	return func(o domain.Order) (*outbox.Message, error) {
		return newMessage(o.ID, domain.EventOrderCreated, domain.OrderCreated{OrderID: o.ID, UserID: o.UserID}, traceparent)
	}
}

func statusChangedEvent(traceparent string) EventFunc {
	return func(o domain.Order) (*outbox.Message, error) {
		return newMessage(o.ID, domain.EventOrderStatusChanged, domain.OrderStatusChanged{OrderID: o.ID, Status: o.Status}, traceparent)
	}
}

func newMessage(orderID int64, eventType string, v any, traceparent string) (*outbox.Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := outbox.NewMessage(AggregateOrder, strconv.FormatInt(orderID, 10), eventType, payload)
	msg.Traceparent = traceparent
	return &msg, nil
}

// EventRoutes maps outbox event types onto the publisher. Payloads that do not
// decode are failed permanently.
func EventRoutes(pub EventPublisher) map[string]outbox.Handler {
	return map[string]outbox.Handler{
		domain.EventOrderCreated: func(ctx context.Context, e outbox.Event) error {
			var ev domain.OrderCreated
			if err := json.Unmarshal(e.Payload, &ev); err != nil {
				return fmt.Errorf("%w: decode %s: %v", outbox.ErrPermanent, e.Type, err)
			}
			return pub.PublishCreated(tracing.ContextWithTraceparent(ctx, e.Traceparent), ev, eventHeaders(e))
		},
		domain.EventOrderStatusChanged: func(ctx context.Context, e outbox.Event) error {
			var ev domain.OrderStatusChanged
			if err := json.Unmarshal(e.Payload, &ev); err != nil {
				return fmt.Errorf("%w: decode %s: %v", outbox.ErrPermanent, e.Type, err)
			}
			return pub.PublishStatusChanged(tracing.ContextWithTraceparent(ctx, e.Traceparent), ev, eventHeaders(e))
		},
	}
}

func eventHeaders(e outbox.Event) map[string]string {
	h := make(map[string]string, len(e.Headers)+1)
	for k, v := range e.Headers {
		h[k] = v
	}
	h[outbox.HeaderEventID] = e.EventID
	return h
}
