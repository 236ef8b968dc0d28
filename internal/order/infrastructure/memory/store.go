// Package memory holds a process-local order store with its own outbox. It
// backs the service when no database is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmehra2102/food-order-platform/internal/order/application"
	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/pkg/outbox"
)

type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	orders  map[int64]domain.Order
	events  []*outbox.Event
	nextID  int64
	nextSub int64
	nextEvt int64
}

func NewStore() *Store {
	return &Store{now: time.Now, orders: make(map[int64]domain.Order)}
}

func (s *Store) Create(_ context.Context, o *domain.Order, event application.EventFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := o.Clone()
	s.nextID++
	saved.ID = s.nextID
	for i := range saved.Items {
		s.nextSub++
		saved.Items[i].ID = s.nextSub
	}
	s.nextSub++
	saved.Payment.ID = s.nextSub

	if err := s.appendEvent(saved, event); err != nil {
		s.nextID--
		return err
	}
	s.orders[saved.ID] = saved
	*o = saved.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id int64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: id %d", domain.ErrOrderNotFound, id)
	}
	return o.Clone(), nil
}

func (s *Store) UpdateStatus(_ context.Context, id int64, decide application.StatusDecision, event application.EventFunc) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: id %d", domain.ErrOrderNotFound, id)
	}
	next, changed, err := decide(cur.Clone())
	if err != nil {
		return domain.Order{}, err
	}
	if !changed {
		return cur.Clone(), nil
	}

	updated := cur.Clone()
	updated.Status = next
	if err := s.appendEvent(updated, event); err != nil {
		return domain.Order{}, err
	}
	s.orders[id] = updated
	return updated.Clone(), nil
}

func (s *Store) ListByUser(_ context.Context, userID int64) ([]domain.Order, error) {
	return s.filter(func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (s *Store) ListAll(_ context.Context) ([]domain.Order, error) {
	return s.filter(func(domain.Order) bool { return true }), nil
}

func (s *Store) FindByDateRange(_ context.Context, from, to time.Time) ([]domain.Order, error) {
	return s.filter(func(o domain.Order) bool {
		return !o.OrderDate.Before(from) && !o.OrderDate.After(to)
	}), nil
}

func (s *Store) filter(keep func(domain.Order) bool) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// appendEvent must be called with mu held.
func (s *Store) appendEvent(o domain.Order, event application.EventFunc) error {
	if event == nil {
		return nil
	}
	msg, err := event(o)
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}
	if msg == nil {
		return nil
	}
	s.nextEvt++
	headers := make(map[string]string, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	s.events = append(s.events, &outbox.Event{
		ID:            s.nextEvt,
		EventID:       msg.EventID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		Type:          msg.Type,
		Payload:       append([]byte(nil), msg.Payload...),
		Headers:       headers,
		Traceparent:   msg.Traceparent,
		CreatedAt:     s.now().UTC(),
		Status:        outbox.StatusPending,
	})
	return nil
}

// Events returns a snapshot of every outbox event written so far.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]outbox.Event, len(s.events))
	for i, e := range s.events {
		out[i] = *e
	}
	return out
}
