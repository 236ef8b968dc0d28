package application_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/food-order-platform/internal/order/application"
	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/internal/order/infrastructure/memory"
	payment "github.com/dmehra2102/food-order-platform/internal/payment/domain"
	"github.com/dmehra2102/food-order-platform/pkg/auth"
	"github.com/dmehra2102/food-order-platform/pkg/outbox"
)

type fakeIdentity struct {
	mu    sync.Mutex
	users map[string]int64
	err   error
	calls int
}

func (f *fakeIdentity) ResolveUserID(_ context.Context, c auth.Caller) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	id, ok := f.users[c.Subject]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	return id, nil
}

type fakePrices map[int64]int64

func (f fakePrices) UnitPrice(_ context.Context, _, dishID int64) (int64, error) {
	p, ok := f[dishID]
	if !ok {
		return 0, fmt.Errorf("%w: dish %d", domain.ErrPricingUnavailable, dishID)
	}
	return p, nil
}

var (
	alice = auth.Caller{Subject: "kc-alice", Roles: []string{auth.RoleUser}}
	bob   = auth.Caller{Subject: "kc-bob", Roles: []string{auth.RoleUser}}
	admin = auth.Caller{Subject: "kc-admin", Roles: []string{auth.RoleAdmin}}
	guest = auth.Caller{Subject: "kc-guest"}
)

var fixedNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *application.Service
	store    *memory.Store
	identity *fakeIdentity
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore()
	identity := &fakeIdentity{users: map[string]int64{"kc-alice": 42, "kc-bob": 43, "kc-admin": 1}}
	svc := application.NewService(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		store,
		identity,
		fakePrices{1: 150, 2: 300},
		application.WithClock(func() time.Time { return fixedNow }),
	)
	return fixture{svc: svc, store: store, identity: identity}
}

func placeRequest() application.PlaceOrderRequest {
	return application.PlaceOrderRequest{
		RestaurantID:  7,
		Items:         []application.ItemRequest{{DishID: 1, Quantity: 2}, {DishID: 2, Quantity: 1}},
		PaymentMethod: "CARD",
	}
}

func (f fixture) place(t *testing.T, c auth.Caller) domain.Order {
	t.Helper()
	o, err := f.svc.PlaceOrder(context.Background(), c, placeRequest())
	require.NoError(t, err)
	return o
}

func (f fixture) eventsOfType(eventType string) []outbox.Event {
	var out []outbox.Event
	for _, e := range f.store.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)

	o := f.place(t, alice)

	assert.NotZero(t, o.ID)
	assert.Equal(t, int64(42), o.UserID)
	assert.Equal(t, int64(7), o.RestaurantID)
	assert.Equal(t, int64(600), o.TotalPrice)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, fixedNow, o.OrderDate)
	assert.Equal(t, payment.StatusCompleted, o.Payment.Status)
	assert.Equal(t, o.TotalPrice, o.Payment.Amount)
	assert.Equal(t, "CARD", o.Payment.Method)
	require.Len(t, o.Items, 2)
	assert.Equal(t, int64(150), o.Items[0].Price)

	created := f.eventsOfType(domain.EventOrderCreated)
	require.Len(t, created, 1)
	var ev domain.OrderCreated
	require.NoError(t, json.Unmarshal(created[0].Payload, &ev))
	assert.Equal(t, domain.OrderCreated{OrderID: o.ID, UserID: 42}, ev)
	assert.Equal(t, fmt.Sprint(o.ID), created[0].AggregateID)
}

func TestPlaceOrderCashIsPlaced(t *testing.T) {
	f := newFixture(t)
	req := placeRequest()
	req.PaymentMethod = "voucher"

	o, err := f.svc.PlaceOrder(context.Background(), alice, req)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPlaced, o.Payment.Status)
}

func TestPlaceOrderFailures(t *testing.T) {
	tests := []struct {
		name    string
		caller  auth.Caller
		mutate  func(*application.PlaceOrderRequest)
		idErr   error
		wantErr error
	}{
		{name: "unknown user", caller: auth.Caller{Subject: "kc-nobody", Roles: []string{auth.RoleUser}}, wantErr: domain.ErrUserNotFound},
		{name: "user service down", caller: alice, idErr: domain.ErrDependencyUnavailable, wantErr: domain.ErrDependencyUnavailable},
		{name: "unpriced dish", caller: alice, mutate: func(r *application.PlaceOrderRequest) { r.Items[0].DishID = 99 }, wantErr: domain.ErrPricingUnavailable},
		{name: "empty items", caller: alice, mutate: func(r *application.PlaceOrderRequest) { r.Items = nil }, wantErr: domain.ErrInvalidRequest},
		{name: "zero quantity", caller: alice, mutate: func(r *application.PlaceOrderRequest) { r.Items[1].Quantity = 0 }, wantErr: domain.ErrInvalidRequest},
		{name: "no role", caller: guest, wantErr: domain.ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.identity.err = tt.idErr
			req := placeRequest()
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			_, err := f.svc.PlaceOrder(context.Background(), tt.caller, req)
			assert.ErrorIs(t, err, tt.wantErr)

			all, _ := f.store.ListAll(context.Background())
			assert.Empty(t, all)
			assert.Empty(t, f.store.Events())
		})
	}
}

func TestInvalidRequestSkipsIdentityLookup(t *testing.T) {
	f := newFixture(t)
	req := placeRequest()
	req.Items = nil

	_, err := f.svc.PlaceOrder(context.Background(), alice, req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Zero(t, f.identity.calls)
}

func TestListOrdersScopedByCaller(t *testing.T) {
	f := newFixture(t)
	f.place(t, alice)
	f.place(t, alice)
	f.place(t, bob)

	mine, err := f.svc.ListOrders(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, o := range mine {
		assert.Equal(t, int64(42), o.UserID)
	}

	all, err := f.svc.ListOrders(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.svc.ListOrders(context.Background(), guest)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestGetOrderAuthorization(t *testing.T) {
	f := newFixture(t)
	o := f.place(t, alice)

	got, err := f.svc.GetOrder(context.Background(), alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.svc.GetOrder(context.Background(), bob, o.ID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = f.svc.GetOrder(context.Background(), admin, o.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetOrder(context.Background(), alice, 404)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t)
	o := f.place(t, alice)

	_, err := f.svc.UpdateOrderStatus(context.Background(), alice, o.ID, "ACCEPTED")
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = f.svc.UpdateOrderStatus(context.Background(), admin, o.ID, "SHIPPED")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.svc.UpdateOrderStatus(context.Background(), admin, o.ID, "COOKING")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	for _, s := range []string{"ACCEPTED", "cooking", "READY_FOR_DELIVERY", "DELIVERING", "COMPLETED"} {
		_, err := f.svc.UpdateOrderStatus(context.Background(), admin, o.ID, s)
		require.NoError(t, err, s)
	}

	_, err = f.svc.UpdateOrderStatus(context.Background(), admin, o.ID, "COOKING")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.UpdateOrderStatus(context.Background(), admin, o.ID, "CANCELLED")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	changed := f.eventsOfType(domain.EventOrderStatusChanged)
	require.Len(t, changed, 5)
	var last domain.OrderStatusChanged
	require.NoError(t, json.Unmarshal(changed[4].Payload, &last))
	assert.Equal(t, domain.OrderStatusChanged{OrderID: o.ID, Status: domain.StatusCompleted}, last)

	_, err = f.svc.UpdateOrderStatus(context.Background(), admin, 404, "ACCEPTED")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCancelOrderIsIdempotent(t *testing.T) {
	f := newFixture(t)
	o := f.place(t, alice)

	first, err := f.svc.CancelOrder(context.Background(), alice, o.ID)
	require.NoError(t, err)
	second, err := f.svc.CancelOrder(context.Background(), alice, o.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, first.Status)
	assert.Equal(t, first, second)
	assert.Len(t, f.eventsOfType(domain.EventOrderStatusChanged), 1)
}

func TestCancelCompletedOrderIsNoop(t *testing.T) {
	f := newFixture(t)
	o := f.place(t, alice)
	for _, s := range []string{"ACCEPTED", "COOKING", "READY_FOR_DELIVERY", "DELIVERING", "COMPLETED"} {
		_, err := f.svc.UpdateOrderStatus(context.Background(), admin, o.ID, s)
		require.NoError(t, err)
	}

	got, err := f.svc.CancelOrder(context.Background(), admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Len(t, f.eventsOfType(domain.EventOrderStatusChanged), 5)
}

func TestCancelOrderAuthorization(t *testing.T) {
	f := newFixture(t)
	o := f.place(t, alice)

	_, err := f.svc.CancelOrder(context.Background(), bob, o.ID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = f.svc.CancelOrder(context.Background(), bob, 404)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	got, err := f.svc.CancelOrder(context.Background(), admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestConcurrentCancelAndUpdateAreSerialized(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		o := f.place(t, alice)

		var updateErr error
		var g errgroup.Group
		g.Go(func() error {
			_, err := f.svc.CancelOrder(context.Background(), alice, o.ID)
			return err
		})
		g.Go(func() error {
			_, updateErr = f.svc.UpdateOrderStatus(context.Background(), admin, o.ID, "ACCEPTED")
			return nil
		})
		require.NoError(t, g.Wait())

		final, err := f.svc.GetOrder(context.Background(), admin, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, final.Status)

		events := f.eventsOfType(domain.EventOrderStatusChanged)
		if updateErr != nil {
			assert.ErrorIs(t, updateErr, domain.ErrInvalidTransition)
			assert.Len(t, events, 1)
		} else {
			assert.Len(t, events, 2)
		}
	}
}

func TestAnalyticsSummary(t *testing.T) {
	f := newFixture(t)
	a := f.place(t, alice)
	f.place(t, alice)
	c := f.place(t, bob)
	for _, s := range []string{"ACCEPTED", "COOKING", "READY_FOR_DELIVERY", "DELIVERING", "COMPLETED"} {
		_, err := f.svc.UpdateOrderStatus(context.Background(), admin, a.ID, s)
		require.NoError(t, err)
	}
	_, err := f.svc.CancelOrder(context.Background(), bob, c.ID)
	require.NoError(t, err)

	_, err = f.svc.AnalyticsSummary(context.Background(), alice, nil, nil)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	sum, err := f.svc.AnalyticsSummary(context.Background(), admin, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(-7*24*time.Hour), sum.From)
	assert.Equal(t, fixedNow, sum.To)
	assert.Equal(t, 3, sum.TotalOrders)
	assert.Equal(t, int64(600), sum.Revenue)
	assert.Equal(t, map[domain.OrderStatus]int{
		domain.StatusCompleted: 1,
		domain.StatusPending:   1,
		domain.StatusCancelled: 1,
	}, sum.ByStatus)

	later := fixedNow.Add(time.Hour)
	empty, err := f.svc.AnalyticsSummary(context.Background(), admin, &later, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Zero(t, empty.TotalOrders)

	from := fixedNow.Add(-time.Minute)
	to := fixedNow.Add(time.Minute)
	windowed, err := f.svc.AnalyticsSummary(context.Background(), admin, &from, &to)
	require.NoError(t, err)
	assert.Equal(t, 3, windowed.TotalOrders)

	onlyTo := fixedNow.Add(-24 * time.Hour)
	toOnly, err := f.svc.AnalyticsSummary(context.Background(), admin, nil, &onlyTo)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(-7*24*time.Hour), toOnly.From)
	assert.Equal(t, onlyTo, toOnly.To)
	assert.Zero(t, toOnly.TotalOrders)

	tooEarly := fixedNow.Add(-8 * 24 * time.Hour)
	_, err = f.svc.AnalyticsSummary(context.Background(), admin, nil, &tooEarly)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSummarize(t *testing.T) {
	sum := application.Summarize([]domain.Order{
		{TotalPrice: 500, Status: domain.StatusCompleted},
		{TotalPrice: 300, Status: domain.StatusPending},
		{TotalPrice: 200, Status: domain.StatusCancelled},
	})
	assert.Equal(t, 3, sum.TotalOrders)
	assert.Equal(t, int64(500), sum.Revenue)
	assert.Equal(t, map[domain.OrderStatus]int{
		domain.StatusCompleted: 1,
		domain.StatusPending:   1,
		domain.StatusCancelled: 1,
	}, sum.ByStatus)
}
