package domain

import (
	"fmt"
	"math"
	"time"

	payment "github.com/dmehra2102/food-order-platform/internal/payment/domain"
)

// Order is the aggregate root. Items and Payment are owned by it and are
// persisted together with it.
type Order struct {
	ID           int64
	UserID       int64
	RestaurantID int64
	Items        []OrderItem
	TotalPrice   int64
	Status       OrderStatus
	OrderDate    time.Time
	Payment      payment.Payment
}

// OrderItem snapshots the dish price at the time the order was placed.
type OrderItem struct {
	ID       int64
	DishID   int64
	Quantity int
	Price    int64
}

func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// NewOrder builds a pending order and computes its total from the item
// snapshots. The payment is left for the caller to settle.
func NewOrder(userID, restaurantID int64, items []OrderItem, now time.Time) (Order, error) {
	if len(items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrInvalidRequest)
	}

	var total int64
	for i, item := range items {
		if item.Quantity < 1 {
			return Order{}, fmt.Errorf("%w: item %d: quantity must be at least 1", ErrInvalidRequest, i)
		}
		if item.Price < 0 {
			return Order{}, fmt.Errorf("%w: item %d: price must not be negative", ErrInvalidRequest, i)
		}
		if item.Price > 0 && int64(item.Quantity) > math.MaxInt64/item.Price {
			return Order{}, fmt.Errorf("%w: item %d: line total overflows", ErrInvalidRequest, i)
		}
		line := item.LineTotal()
		if total > math.MaxInt64-line {
			return Order{}, fmt.Errorf("%w: order total overflows", ErrInvalidRequest)
		}
		total += line
	}

	return Order{
		UserID:       userID,
		RestaurantID: restaurantID,
		Items:        items,
		TotalPrice:   total,
		Status:       StatusPending,
		OrderDate:    now.UTC(),
	}, nil
}

// OwnedBy reports whether userID owns the order.
func (o Order) OwnedBy(userID int64) bool {
	return o.UserID == userID
}

// Clone returns a deep copy safe to hand across goroutines.
func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]OrderItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	return o
}
