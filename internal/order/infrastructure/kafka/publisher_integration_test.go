//go:build integration

package kafka_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	orderkafka "github.com/dmehra2102/food-order-platform/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/food-order-platform/pkg/outbox"
	"github.com/dmehra2102/food-order-platform/test/integration"
)

func TestPublisherAgainstBroker(t *testing.T) {
	ctx := context.Background()
	env, err := integration.Setup(ctx, integration.WithKafka())
	require.NoError(t, err)
	t.Cleanup(func() { env.Teardown(context.Background()) })

	writer := orderkafka.NewWriter(env.KAddr)
	t.Cleanup(func() { _ = writer.Close() })

	topics := orderkafka.Topics{Created: "order-created-it", StatusChanged: "order-status-changed-it"}
	pub := orderkafka.NewPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)), writer, topics)

	require.Eventually(t, func() bool {
		return pub.PublishCreated(ctx, domain.OrderCreated{OrderID: 11, UserID: 3}, map[string]string{outbox.HeaderEventID: "ev-11"}) == nil
	}, 30*time.Second, time.Second)
	require.NoError(t, pub.PublishStatusChanged(ctx, domain.OrderStatusChanged{OrderID: 11, Status: domain.StatusAccepted}, nil))

	read := func(topic string) kafka.Message {
		r := kafka.NewReader(kafka.ReaderConfig{Brokers: env.KAddr, Topic: topic, MaxWait: 500 * time.Millisecond})
		defer r.Close()
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		msg, err := r.ReadMessage(rctx)
		require.NoError(t, err)
		return msg
	}

	created := read(topics.Created)
	assert.Equal(t, "11", string(created.Key))
	assert.JSONEq(t, `{"orderId":11,"userId":3}`, string(created.Value))
	headers := map[string]string{}
	for _, h := range created.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "ev-11", headers[outbox.HeaderEventID])
	assert.Equal(t, domain.EventOrderCreated, headers[orderkafka.HeaderEventType])

	changed := read(topics.StatusChanged)
	assert.Equal(t, "11", string(changed.Key))
	assert.JSONEq(t, `{"orderId":11,"status":"ACCEPTED"}`, string(changed.Value))
}
