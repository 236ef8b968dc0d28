package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/pkg/outbox"
)

func newOrder(t *testing.T, userID int64, at time.Time) domain.Order {
	t.Helper()
	o, err := domain.NewOrder(userID, 7, []domain.OrderItem{{DishID: 1, Quantity: 2, Price: 150}}, at)
	require.NoError(t, err)
	return o
}

func eventOf(eventType string) func(domain.Order) (*outbox.Message, error) {
	return func(o domain.Order) (*outbox.Message, error) {
		m := outbox.NewMessage("order", "x", eventType, []byte(`{}`))
		return &m, nil
	}
}

func TestCreateAssignsIDsAndWritesEvent(t *testing.T) {
	s := NewStore()
	o := newOrder(t, 1, time.Now())

	require.NoError(t, s.Create(context.Background(), &o, eventOf("OrderCreated")))
	assert.Equal(t, int64(1), o.ID)
	assert.NotZero(t, o.Items[0].ID)
	assert.NotZero(t, o.Payment.ID)

	got, err := s.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o, got)
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "OrderCreated", s.Events()[0].Type)
}

func TestCreateWritesNothingWhenEventFails(t *testing.T) {
	s := NewStore()
	o := newOrder(t, 1, time.Now())

	err := s.Create(context.Background(), &o, func(domain.Order) (*outbox.Message, error) {
		return nil, errors.New("encode")
	})
	require.Error(t, err)
	all, _ := s.ListAll(context.Background())
	assert.Empty(t, all)
	assert.Empty(t, s.Events())
	assert.Zero(t, o.ID)
}

func TestUpdateStatusUnchangedWritesNoEvent(t *testing.T) {
	s := NewStore()
	o := newOrder(t, 1, time.Now())
	require.NoError(t, s.Create(context.Background(), &o, nil))

	got, err := s.UpdateStatus(context.Background(), o.ID, func(cur domain.Order) (domain.OrderStatus, bool, error) {
		return cur.Status, false, nil
	}, eventOf("OrderStatusChanged"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Empty(t, s.Events())

	_, err = s.UpdateStatus(context.Background(), 99, nil, nil)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestConcurrentCreatesGetDistinctIDs(t *testing.T) {
	s := NewStore()
	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			o := newOrder(t, 1, time.Now())
			return s.Create(context.Background(), &o, eventOf("OrderCreated"))
		})
	}
	require.NoError(t, g.Wait())

	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 50)
	for i, o := range all {
		assert.Equal(t, int64(i+1), o.ID)
	}
}

func TestFindByDateRangeIsInclusive(t *testing.T) {
	s := NewStore()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	for _, at := range []time.Time{from.Add(-time.Second), from, to, to.Add(time.Second)} {
		o := newOrder(t, 1, at)
		require.NoError(t, s.Create(context.Background(), &o, nil))
	}

	got, err := s.FindByDateRange(context.Background(), from, to)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestOutboxLeaseReclaim(t *testing.T) {
	s := NewStore()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	o := newOrder(t, 1, clock)
	require.NoError(t, s.Create(context.Background(), &o, eventOf("OrderCreated")))

	batch, err := s.LockBatch(context.Background(), "a", 10, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	batch, err = s.LockBatch(context.Background(), "b", 10, 5*time.Second)
	require.NoError(t, err)
	assert.Empty(t, batch)

	clock = clock.Add(6 * time.Second)
	batch, err = s.LockBatch(context.Background(), "b", 10, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "b", batch[0].RelayID)

	require.NoError(t, s.MarkSent(context.Background(), []int64{batch[0].ID}))
	assert.Equal(t, outbox.StatusSent, s.Events()[0].Status)
}
