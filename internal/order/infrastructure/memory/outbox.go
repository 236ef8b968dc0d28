package memory

import (
	"context"
	"time"

	"github.com/dmehra2102/food-order-platform/pkg/outbox"
)

func (s *Store) LockBatch(_ context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	until := now.Add(lease)
	var out []outbox.Event
	for _, e := range s.events {
		if len(out) >= batchSize {
			break
		}
		claimable := e.Status == outbox.StatusPending ||
			(e.Status == outbox.StatusInProgress && e.LeaseUntil != nil && e.LeaseUntil.Before(now))
		if !claimable {
			continue
		}
		e.Status = outbox.StatusInProgress
		e.RelayID = relayID
		leaseUntil := until
		e.LeaseUntil = &leaseUntil
		out = append(out, *e)
	}
	return out, nil
}

func (s *Store) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.byID(ids) {
		e.Status = outbox.StatusSent
		e.LeaseUntil = nil
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id int64, errMsg string, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.byID([]int64{id}) {
		e.RetryCount++
		msg := errMsg
		e.LastError = &msg
		e.LeaseUntil = nil
		if e.RetryCount > maxRetries {
			e.Status = outbox.StatusFailed
		} else {
			e.Status = outbox.StatusPending
		}
	}
	return nil
}

func (s *Store) Release(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.byID(ids) {
		e.Status = outbox.StatusPending
		e.LeaseUntil = nil
	}
	return nil
}

func (s *Store) byID(ids []int64) []*outbox.Event {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []*outbox.Event
	for _, e := range s.events {
		if _, ok := want[e.ID]; ok {
			out = append(out, e)
		}
	}
	return out
}
