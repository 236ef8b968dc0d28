package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string]memoryEntry
}

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, records: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, ttl time.Duration) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.records[key]; ok && now.Before(e.expiresAt) {
		if e.record.Fingerprint != fingerprint {
			return Reservation{}, ErrFingerprintMismatch
		}
		if e.record.Status == StatusCompleted {
			return Reservation{State: ReservationStateCompleted, Record: e.record}, nil
		}
		return Reservation{State: ReservationStatePending, Record: e.record}, nil
	}
	s.records[key] = memoryEntry{
		record:    Record{Fingerprint: fingerprint, Status: StatusPending},
		expiresAt: now.Add(ttl),
	}
	return Reservation{State: ReservationStateNew}, nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = memoryEntry{
		record: Record{
			Fingerprint:     fingerprint,
			Status:          StatusCompleted,
			ResponseStatus:  resp.Status,
			ResponseHeaders: resp.Headers.Clone(),
			ResponseBody:    append([]byte(nil), resp.Body...),
		},
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
