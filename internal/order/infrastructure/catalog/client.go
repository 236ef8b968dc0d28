package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
)

// Client looks up dish prices in the restaurant catalog. Any failure to
// obtain a price is reported as domain.ErrPricingUnavailable.
type Client struct {
	log     *slog.Logger
	baseURL string
	http    *http.Client
}

func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	return &Client{
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type dishResponse struct {
	ID    int64  `json:"id"`
	Price *int64 `json:"price"`
}

func (c *Client) UnitPrice(ctx context.Context, restaurantID, dishID int64) (int64, error) {
	endpoint := fmt.Sprintf("%s/api/restaurants/%d/dishes/%d", c.baseURL, restaurantID, dishID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPricingUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("catalog lookup failed", "restaurant_id", restaurantID, "dish_id", dishID, "err", err)
		return 0, fmt.Errorf("%w: dish %d: %v", domain.ErrPricingUnavailable, dishID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("%w: dish %d: catalog returned %d", domain.ErrPricingUnavailable, dishID, resp.StatusCode)
	}

	var body dishResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: dish %d: %v", domain.ErrPricingUnavailable, dishID, err)
	}
	if body.Price == nil || *body.Price < 0 {
		return 0, fmt.Errorf("%w: dish %d has no valid price", domain.ErrPricingUnavailable, dishID)
	}
	return *body.Price, nil
}
