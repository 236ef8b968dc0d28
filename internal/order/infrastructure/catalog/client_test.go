package catalog

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
)

func TestUnitPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/restaurants/7/dishes/1":
			_, _ = w.Write([]byte(`{"id":1,"name":"Margherita","price":150}`))
		case "/api/restaurants/7/dishes/2":
			_, _ = w.Write([]byte(`{"id":2,"name":"Mystery"}`))
		case "/api/restaurants/7/dishes/3":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.URL+"/", time.Second)

	price, err := c.UnitPrice(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(150), price)

	for _, dish := range []int64{2, 3, 4} {
		_, err := c.UnitPrice(context.Background(), 7, dish)
		assert.ErrorIs(t, err, domain.ErrPricingUnavailable, "dish %d", dish)
	}
}

func TestUnitPriceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), url, time.Second)
	_, err := c.UnitPrice(context.Background(), 7, 1)
	assert.ErrorIs(t, err, domain.ErrPricingUnavailable)
}
