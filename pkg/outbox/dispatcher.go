package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrPermanent marks a dispatch failure that retrying cannot fix, such as an
// undecodable payload or an unknown event type.
var ErrPermanent = errors.New("permanent")

// Handler delivers one event to its destination.
type Handler func(ctx context.Context, event Event) error

type Dispatcher struct {
	log    *slog.Logger
	routes map[string]Handler
}

func NewDispatcher(log *slog.Logger, routes map[string]Handler) *Dispatcher {
	return &Dispatcher{log: log, routes: routes}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	handler, ok := d.routes[event.Type]
	if !ok {
		return fmt.Errorf("%w: no route for event type %q", ErrPermanent, event.Type)
	}
	if err := handler(ctx, event); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", event.EventID, "type", event.Type, "err", err)
		return err
	}
	d.log.Info("outbox dispatched", "event_id", event.EventID, "type", event.Type, "aggregate_id", event.AggregateID)
	return nil
}
