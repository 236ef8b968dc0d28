package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	order "github.com/dmehra2102/food-order-platform/internal/order/domain"
)

var (
	ErrUnknownEvent = errors.New("unknown event type")
	ErrBadPayload   = errors.New("undecodable event payload")
)

type Kind string

const (
	KindOrderPlaced   Kind = "ORDER_PLACED"
	KindStatusChanged Kind = "ORDER_STATUS_CHANGED"
)

// Notification is what subscribers are told about an order.
type Notification struct {
	Kind    Kind
	OrderID int64
	UserID  int64
	Status  order.OrderStatus
	Text    string
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type Service struct {
	log    *slog.Logger
	sender Sender
}

func NewService(log *slog.Logger, sender Sender) *Service {
	return &Service{log: log, sender: sender}
}

// Handle turns one order event into a notification. ErrUnknownEvent and
// ErrBadPayload mean the event can never be handled and should be skipped.
func (s *Service) Handle(ctx context.Context, eventType string, payload []byte) error {
	var n Notification
	switch eventType {
	case order.EventOrderCreated:
		var e order.OrderCreated
		if err := json.Unmarshal(payload, &e); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBadPayload, eventType, err)
		}
		n = Notification{
			Kind:    KindOrderPlaced,
			OrderID: e.OrderID,
			UserID:  e.UserID,
			Status:  order.StatusPending,
			Text:    fmt.Sprintf("order #%d has been placed", e.OrderID),
		}
	case order.EventOrderStatusChanged:
		var e order.OrderStatusChanged
		if err := json.Unmarshal(payload, &e); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBadPayload, eventType, err)
		}
		if !e.Status.Valid() {
			return fmt.Errorf("%w: %s: status %q", ErrBadPayload, eventType, e.Status)
		}
		n = Notification{
			Kind:    KindStatusChanged,
			OrderID: e.OrderID,
			Status:  e.Status,
			Text:    statusText(e.OrderID, e.Status),
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}

	if err := s.sender.Send(ctx, n); err != nil {
		return fmt.Errorf("send notification for order %d: %w", n.OrderID, err)
	}
	return nil
}

func statusText(orderID int64, status order.OrderStatus) string {
	switch status {
	case order.StatusAccepted:
		return fmt.Sprintf("order #%d was accepted by the restaurant", orderID)
	case order.StatusCooking:
		return fmt.Sprintf("order #%d is being cooked", orderID)
	case order.StatusReadyForDelivery:
		return fmt.Sprintf("order #%d is ready for delivery", orderID)
	case order.StatusDelivering:
		return fmt.Sprintf("order #%d is on its way", orderID)
	case order.StatusCompleted:
		return fmt.Sprintf("order #%d was delivered", orderID)
	case order.StatusCancelled:
		return fmt.Sprintf("order #%d was cancelled", orderID)
	default:
		return fmt.Sprintf("order #%d is now %s", orderID, status)
	}
}

// LogSender writes notifications to the structured log.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	s.log.InfoContext(ctx, "notification",
		"kind", n.Kind,
		"order_id", n.OrderID,
		"user_id", n.UserID,
		"status", n.Status,
		"text", n.Text,
	)
	return nil
}
