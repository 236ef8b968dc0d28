package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	paymentapp "github.com/dmehra2102/food-order-platform/internal/payment/application"
	payment "github.com/dmehra2102/food-order-platform/internal/payment/domain"
)

// MaxItemQuantity caps a single order line.
const MaxItemQuantity = 1000

type ItemRequest struct {
	DishID   int64 `json:"dishId"`
	Quantity int   `json:"quantity"`
}

type PlaceOrderRequest struct {
	RestaurantID  int64         `json:"restaurantId"`
	Items         []ItemRequest `json:"items"`
	PaymentMethod string        `json:"paymentMethod"`
}

func (r PlaceOrderRequest) Validate() error {
	if r.RestaurantID <= 0 {
		return fmt.Errorf("%w: restaurantId must be positive", domain.ErrInvalidRequest)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", domain.ErrInvalidRequest)
	}
	for i, it := range r.Items {
		if it.DishID <= 0 {
			return fmt.Errorf("%w: item %d: dishId must be positive", domain.ErrInvalidRequest, i)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: item %d: quantity must be at least 1", domain.ErrInvalidRequest, i)
		}
		if it.Quantity > MaxItemQuantity {
			return fmt.Errorf("%w: item %d: quantity must not exceed %d", domain.ErrInvalidRequest, i, MaxItemQuantity)
		}
	}
	return nil
}

// Builder assembles the order aggregate from a validated request.
type Builder struct {
	prices PriceLookup
}

func NewBuilder(prices PriceLookup) *Builder {
	return &Builder{prices: prices}
}

// Build prices every item from the catalog, so a missing price fails the
// whole order with ErrPricingUnavailable.
func (b *Builder) Build(ctx context.Context, userID int64, req PlaceOrderRequest, now time.Time) (domain.Order, error) {
	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}

	cache := make(map[int64]int64, len(req.Items))
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		price, ok := cache[it.DishID]
		if !ok {
			p, err := b.prices.UnitPrice(ctx, req.RestaurantID, it.DishID)
			if err != nil {
				if errors.Is(err, domain.ErrPricingUnavailable) {
					return domain.Order{}, err
				}
				return domain.Order{}, fmt.Errorf("%w: dish %d: %v", domain.ErrPricingUnavailable, it.DishID, err)
			}
			price = p
			cache[it.DishID] = p
		}
		items = append(items, domain.OrderItem{DishID: it.DishID, Quantity: it.Quantity, Price: price})
	}

	o, err := domain.NewOrder(userID, req.RestaurantID, items, now)
	if err != nil {
		return domain.Order{}, err
	}

	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = paymentapp.MethodCash
	}
	o.Payment = paymentapp.Settle(method, payment.NewPayment(method, o.TotalPrice))
	return o, nil
}
