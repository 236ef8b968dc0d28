package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/pkg/auth"
	"github.com/dmehra2102/food-order-platform/pkg/tracing"
)

// Service runs the order workflow. Every operation checks the caller's
// capability before touching any dependency.
type Service struct {
	log      *slog.Logger
	store    OrderStore
	identity IdentityResolver
	builder  *Builder
	now      func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(log *slog.Logger, store OrderStore, identity IdentityResolver, prices PriceLookup, opts ...Option) *Service {
	s := &Service{
		log:      log,
		store:    store,
		identity: identity,
		builder:  NewBuilder(prices),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireUser(c auth.Caller) error {
	if c.HasRole(auth.RoleUser) || c.IsAdmin() {
		return nil
	}
	return fmt.Errorf("%w: authenticated user role required", domain.ErrAccessDenied)
}

func requireAdmin(c auth.Caller) error {
	if c.IsAdmin() {
		return nil
	}
	return fmt.Errorf("%w: admin role required", domain.ErrAccessDenied)
}

// PlaceOrder resolves the caller, builds the order and commits it together
// with its OrderCreated event.
func (s *Service) PlaceOrder(ctx context.Context, caller auth.Caller, req PlaceOrderRequest) (domain.Order, error) {
	if err := requireUser(caller); err != nil {
		return domain.Order{}, err
	}
	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}

	userID, err := s.identity.ResolveUserID(ctx, caller)
	if err != nil {
		return domain.Order{}, err
	}

	o, err := s.builder.Build(ctx, userID, req, s.now())
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.store.Create(ctx, &o, createdEvent(tracing.Traceparent(ctx))); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order placed",
		"order_id", o.ID,
		"user_id", o.UserID,
		"restaurant_id", o.RestaurantID,
		"total", o.TotalPrice,
		"payment_status", o.Payment.Status,
	)
	return o, nil
}

// ListOrders returns every order to admins and only the caller's own orders
// to everyone else.
func (s *Service) ListOrders(ctx context.Context, caller auth.Caller) ([]domain.Order, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	if caller.IsAdmin() {
		return s.store.ListAll(ctx)
	}

	userID, err := s.identity.ResolveUserID(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) GetOrder(ctx context.Context, caller auth.Caller, id int64) (domain.Order, error) {
	if err := requireUser(caller); err != nil {
		return domain.Order{}, err
	}

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if caller.IsAdmin() {
		return o, nil
	}
	if err := s.checkOwner(ctx, caller, o); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (s *Service) checkOwner(ctx context.Context, caller auth.Caller, o domain.Order) error {
	userID, err := s.identity.ResolveUserID(ctx, caller)
	if err != nil {
		return err
	}
	if !o.OwnedBy(userID) {
		return fmt.Errorf("%w: order %d belongs to another user", domain.ErrAccessDenied, o.ID)
	}
	return nil
}

// UpdateOrderStatus moves an order along the lifecycle. The legality check
// runs against the row locked by the store.
func (s *Service) UpdateOrderStatus(ctx context.Context, caller auth.Caller, id int64, status string) (domain.Order, error) {
	if err := requireAdmin(caller); err != nil {
		return domain.Order{}, err
	}
	next, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Order{}, err
	}

	decide := func(cur domain.Order) (domain.OrderStatus, bool, error) {
		if !cur.Status.CanTransitionTo(next) {
			return "", false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, cur.Status, next)
		}
		return next, true, nil
	}

	o, err := s.store.UpdateStatus(ctx, id, decide, statusChangedEvent(tracing.Traceparent(ctx)))
	if err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order status updated", "order_id", o.ID, "status", o.Status)
	return o, nil
}

// CancelOrder is idempotent: an order that already reached a terminal status
// is returned unchanged and no event is written.
func (s *Service) CancelOrder(ctx context.Context, caller auth.Caller, id int64) (domain.Order, error) {
	if err := requireUser(caller); err != nil {
		return domain.Order{}, err
	}

	if !caller.IsAdmin() {
		// ownership never changes, so checking it before the locked update is safe
		o, err := s.store.Get(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		if err := s.checkOwner(ctx, caller, o); err != nil {
			return domain.Order{}, err
		}
	}

	decide := func(cur domain.Order) (domain.OrderStatus, bool, error) {
		if cur.Status.IsTerminal() {
			return cur.Status, false, nil
		}
		return domain.StatusCancelled, true, nil
	}

	o, err := s.store.UpdateStatus(ctx, id, decide, statusChangedEvent(tracing.Traceparent(ctx)))
	if err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order cancel requested", "order_id", o.ID, "status", o.Status)
	return o, nil
}
