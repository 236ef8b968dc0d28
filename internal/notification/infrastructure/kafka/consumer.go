package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/food-order-platform/internal/notification/application"
	"github.com/dmehra2102/food-order-platform/pkg/outbox"
	"github.com/dmehra2102/food-order-platform/pkg/resilience"
	"github.com/dmehra2102/food-order-platform/pkg/tracing"
)

const (
	headerEventType = "event_type"

	OutcomeHandled   = "handled"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Deduper interface {
	Key(eventID, topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type Retrier interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type Recorder interface {
	Consumed(topic, outcome string)
}

// Consumer feeds order events to the notification service at least once and
// drops redeliveries it has already handled.
type Consumer struct {
	log      *slog.Logger
	reader   MessageReader
	svc      *application.Service
	dedupe   Deduper
	retry    Retrier
	recorder Recorder
	types    map[string]string
	tracer   trace.Tracer
}

// NewReader joins group on every topic in topics.
func NewReader(brokers []string, group string, topics ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
	})
}

// NewConsumer takes topicTypes, mapping topic to event type, for messages
// that carry no event_type header.
func NewConsumer(log *slog.Logger, reader MessageReader, svc *application.Service, dedupe Deduper, retry Retrier, recorder Recorder, topicTypes map[string]string) *Consumer {
	return &Consumer{
		log:      log,
		reader:   reader,
		svc:      svc,
		dedupe:   dedupe,
		retry:    retry,
		recorder: recorder,
		types:    topicTypes,
		tracer:   otel.Tracer("notification-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		outcome := c.handle(ctx, msg)
		if c.recorder != nil {
			c.recorder.Consumed(msg.Topic, outcome)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("commit failed", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) string {
	eventID := headerValue(msg.Headers, outbox.HeaderEventID)
	key := c.dedupe.Key(eventID, msg.Topic, msg.Partition, msg.Offset)

	seen, err := c.dedupe.Seen(ctx, key)
	if err != nil {
		// Without the dedupe store a redelivery may notify twice.
		c.log.Warn("dedupe check failed", "key", key, "err", err)
	} else if seen {
		c.log.Info("duplicate event skipped", "key", key)
		return OutcomeDuplicate
	}

	eventType := headerValue(msg.Headers, headerEventType)
	if eventType == "" {
		eventType = c.types[msg.Topic]
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "Consume"+eventType)
	span.SetAttributes(
		attribute.String("messaging.destination", msg.Topic),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)
	defer span.End()

	err = c.retry.Do(msgCtx, func(ctx context.Context) error {
		err := c.svc.Handle(ctx, eventType, msg.Value)
		if errors.Is(err, application.ErrUnknownEvent) || errors.Is(err, application.ErrBadPayload) {
			return resilience.Permanent(err)
		}
		return err
	})
	switch {
	case err == nil:
		return OutcomeHandled
	case errors.Is(err, application.ErrUnknownEvent), errors.Is(err, application.ErrBadPayload):
		c.log.Warn("event skipped", "topic", msg.Topic, "event_id", eventID, "err", err)
		return OutcomeSkipped
	default:
		span.RecordError(err)
		if ferr := c.dedupe.Forget(ctx, key); ferr != nil {
			c.log.Warn("dedupe release failed", "key", key, "err", ferr)
		}
		c.log.Error("event handling failed", "topic", msg.Topic, "event_id", eventID, "err", err)
		return OutcomeFailed
	}
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
