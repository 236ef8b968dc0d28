package tracing

import (
	"context"
	"io"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceparentRoundTrip(t *testing.T) {
	tp, err := Init(context.Background(), "test", "", 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	header := Traceparent(ctx)
	require.NotEmpty(t, header)

	remote := trace.SpanContextFromContext(ContextWithTraceparent(context.Background(), header))
	assert.Equal(t, span.SpanContext().TraceID(), remote.TraceID())
	assert.True(t, remote.IsRemote())

	headers := InjectKafkaHeaders(ctx, []kafka.Header{{Key: "event_type", Value: []byte("OrderCreated")}})
	extracted := trace.SpanContextFromContext(ExtractKafkaHeaders(context.Background(), headers))
	assert.Equal(t, span.SpanContext().TraceID(), extracted.TraceID())
}

func TestKafkaHeadersReplaceStaleTraceparent(t *testing.T) {
	tp, err := Init(context.Background(), "test", "", 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	stale := []kafka.Header{{Key: TraceparentHeader, Value: []byte("00-00000000000000000000000000000001-0000000000000001-01")}}
	headers := InjectKafkaHeaders(ctx, stale)

	var count int
	for _, h := range headers {
		if h.Key == TraceparentHeader {
			count++
			assert.Equal(t, Traceparent(ctx), string(h.Value))
		}
	}
	assert.Equal(t, 1, count)
}

func TestAMQPHeadersRoundTrip(t *testing.T) {
	tp, err := Init(context.Background(), "test", "", 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	table := amqp.Table{"event_type": "OrderCreated"}
	InjectAMQPHeaders(ctx, table)
	assert.Equal(t, Traceparent(ctx), table[TraceparentHeader])

	extracted := trace.SpanContextFromContext(ExtractAMQPHeaders(context.Background(), table))
	assert.Equal(t, span.SpanContext().TraceID(), extracted.TraceID())
}

func TestContextWithEmptyTraceparent(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, ContextWithTraceparent(ctx, ""))
}
