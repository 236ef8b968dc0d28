package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New("orders_test")
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("/orders/{id}", "GET", "404")))
}

func TestRecordersAndHandler(t *testing.T) {
	m := New("orders_test")
	m.ObserveBreaker("user-service", gobreaker.StateOpen)
	m.Dispatched("OrderCreated")
	m.DispatchFailed("OrderStatusChanged")
	m.Consumed("order-created", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("user-service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxSent.WithLabelValues("OrderCreated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxFailed.WithLabelValues("OrderStatusChanged")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "foodorder_orders_test_circuit_breaker_state"))
}

func TestServiceNameWithDashes(t *testing.T) {
	m := New("notification-service")
	m.Consumed("order-created", "handled")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `foodorder_notification_service_events_consumed_total{outcome="handled",topic="order-created"} 1`)
}
