package application

import (
	"context"
	"time"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/pkg/auth"
	"github.com/dmehra2102/food-order-platform/pkg/outbox"
)

// EventFunc derives the outbox message for an order after the store has
// assigned its identifiers. A nil message writes no event.
type EventFunc func(o domain.Order) (*outbox.Message, error)

// StatusDecision inspects the locked current order and returns the status to
// move to. changed=false leaves the order and the outbox untouched.
type StatusDecision func(current domain.Order) (next domain.OrderStatus, changed bool, err error)

type OrderStore interface {
	// Create persists the order with its items and payment, plus the event,
	// in one transaction. IDs are assigned to o only after commit.
	Create(ctx context.Context, o *domain.Order, event EventFunc) error
	Get(ctx context.Context, id int64) (domain.Order, error)
	// UpdateStatus locks the order, applies decide and writes the new status
	// with its event atomically. It returns the order as it stands afterwards.
	UpdateStatus(ctx context.Context, id int64, decide StatusDecision, event EventFunc) (domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
	// FindByDateRange returns orders placed within [from, to], bounds inclusive.
	FindByDateRange(ctx context.Context, from, to time.Time) ([]domain.Order, error)
}

// IdentityResolver maps an authenticated caller to the internal user id.
type IdentityResolver interface {
	ResolveUserID(ctx context.Context, caller auth.Caller) (int64, error)
}

// PriceLookup returns the current unit price of a dish in minor units.
type PriceLookup interface {
	UnitPrice(ctx context.Context, restaurantID, dishID int64) (int64, error)
}

type EventPublisher interface {
	PublishCreated(ctx context.Context, e domain.OrderCreated, headers map[string]string) error
	PublishStatusChanged(ctx context.Context, e domain.OrderStatusChanged, headers map[string]string) error
}
