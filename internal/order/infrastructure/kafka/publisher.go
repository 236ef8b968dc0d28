package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/pkg/tracing"
)

const HeaderEventType = "event_type"

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Topics struct {
	Created       string
	StatusChanged string
}

// Publisher sends order events to Kafka keyed by order id.
type Publisher struct {
	log    *slog.Logger
	writer MessageWriter
	topics Topics
}

func NewPublisher(log *slog.Logger, writer MessageWriter, topics Topics) *Publisher {
	return &Publisher{log: log, writer: writer, topics: topics}
}

func (p *Publisher) PublishCreated(ctx context.Context, e domain.OrderCreated, headers map[string]string) error {
	return p.publish(ctx, p.topics.Created, e.OrderID, domain.EventOrderCreated, e, headers)
}

func (p *Publisher) PublishStatusChanged(ctx context.Context, e domain.OrderStatusChanged, headers map[string]string) error {
	return p.publish(ctx, p.topics.StatusChanged, e.OrderID, domain.EventOrderStatusChanged, e, headers)
}

func (p *Publisher) publish(ctx context.Context, topic string, orderID int64, eventType string, v any, headers map[string]string) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	kh := make([]kafka.Header, 0, len(headers)+2)
	for k, v := range headers {
		kh = append(kh, kafka.Header{Key: k, Value: []byte(v)})
	}
	kh = append(kh, kafka.Header{Key: HeaderEventType, Value: []byte(eventType)})
	kh = tracing.InjectKafkaHeaders(ctx, kh)

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(strconv.FormatInt(orderID, 10)),
		Value:   payload,
		Headers: kh,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	p.log.Debug("event published", "topic", topic, "order_id", orderID, "type", eventType)
	return nil
}
