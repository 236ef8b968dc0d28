package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type Store interface {
	// LockBatch claims up to batchSize pending events, plus in-progress events
	// whose lease has expired, in id order.
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	// MarkFailed records a failed delivery. The event goes back to pending
	// until it has been retried maxRetries times, then it is marked failed.
	MarkFailed(ctx context.Context, id int64, errMsg string, maxRetries int) error
	// Release hands claimed events back as pending without counting a retry.
	Release(ctx context.Context, ids []int64) error
}

// Recorder observes relay outcomes.
type Recorder interface {
	Dispatched(eventType string)
	DispatchFailed(eventType string)
}

type Relay struct {
	log        *slog.Logger
	store      Store
	dispatch   *Dispatcher
	relayID    string
	batchSize  int
	interval   time.Duration
	lease      time.Duration
	maxRetries int
	recorder   Recorder
}

type RelayOption func(*Relay)

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLease(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.lease = d
		}
	}
}

func WithMaxRetries(n int) RelayOption {
	return func(r *Relay) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

func WithRecorder(rec Recorder) RelayOption {
	return func(r *Relay) { r.recorder = rec }
}

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, relayID string, opts ...RelayOption) *Relay {
	r := &Relay{
		log:        log,
		store:      store,
		dispatch:   dispatch,
		relayID:    relayID,
		batchSize:  100,
		interval:   500 * time.Millisecond,
		lease:      5 * time.Second,
		maxRetries: 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("relay batch error", "relay_id", r.relayID, "err", err)
			}
		}
	}
}

// RunOnce claims and dispatches a single batch and returns how many events
// were delivered. Once an event of an aggregate fails, the later events of the
// same aggregate in the batch are released unsent so per-aggregate order holds.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	blocked := make(map[string]bool)
	sent := make([]int64, 0, len(events))
	var released []int64

	for _, e := range events {
		key := e.aggregateKey()
		if blocked[key] {
			released = append(released, e.ID)
			continue
		}

		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			r.record(e.Type, false)
			retries := r.maxRetries
			if errors.Is(err, ErrPermanent) {
				retries = 0
			} else {
				blocked[key] = true
			}
			if markErr := r.store.MarkFailed(ctx, e.ID, err.Error(), retries); markErr != nil {
				r.log.Error("relay mark failed error", "event_id", e.EventID, "err", markErr)
			}
			continue
		}
		r.record(e.Type, true)
		sent = append(sent, e.ID)
	}

	if len(released) > 0 {
		if err := r.store.Release(ctx, released); err != nil {
			r.log.Error("relay release error", "err", err)
		}
	}
	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return 0, err
		}
	}
	return len(sent), nil
}

func (r *Relay) record(eventType string, ok bool) {
	if r.recorder == nil {
		return
	}
	if ok {
		r.recorder.Dispatched(eventType)
	} else {
		r.recorder.DispatchFailed(eventType)
	}
}
