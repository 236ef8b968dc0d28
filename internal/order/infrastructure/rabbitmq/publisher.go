package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/pkg/tracing"
)

const (
	RoutingKeyCreated       = "order.created"
	RoutingKeyStatusChanged = "order.status_changed"
)

type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a fresh channel for each publish.
type Dialer func() (Channel, error)

// ConnectionDialer adapts an AMQP connection to a Dialer.
func ConnectionDialer(conn *amqp.Connection) Dialer {
	return func() (Channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}

// Publisher sends order events to a durable topic exchange.
type Publisher struct {
	log      *slog.Logger
	dial     Dialer
	exchange string

	mu       sync.Mutex
	declared bool
}

func NewPublisher(log *slog.Logger, dial Dialer, exchange string) *Publisher {
	return &Publisher{log: log, dial: dial, exchange: exchange}
}

func (p *Publisher) PublishCreated(ctx context.Context, e domain.OrderCreated, headers map[string]string) error {
	return p.publish(ctx, RoutingKeyCreated, e.OrderID, domain.EventOrderCreated, e, headers)
}

func (p *Publisher) PublishStatusChanged(ctx context.Context, e domain.OrderStatusChanged, headers map[string]string) error {
	return p.publish(ctx, RoutingKeyStatusChanged, e.OrderID, domain.EventOrderStatusChanged, e, headers)
}

func (p *Publisher) publish(ctx context.Context, key string, orderID int64, eventType string, v any, headers map[string]string) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ch, err := p.dial()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := p.declare(ch); err != nil {
		return err
	}

	table := amqp.Table{"event_type": eventType, "order_id": strconv.FormatInt(orderID, 10)}
	for k, v := range headers {
		table[k] = v
	}
	tracing.InjectAMQPHeaders(ctx, table)

	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    headers["event_id"],
		Type:         eventType,
		Headers:      table,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.log.Debug("event published", "exchange", p.exchange, "key", key, "order_id", orderID)
	return nil
}

func (p *Publisher) declare(ch Channel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared {
		return nil
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	p.declared = true
	return nil
}
