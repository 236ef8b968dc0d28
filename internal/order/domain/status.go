package domain

import (
	"fmt"
	"slices"
	"strings"
)

type OrderStatus string

const (
	StatusPending          OrderStatus = "PENDING"
	StatusAccepted         OrderStatus = "ACCEPTED"
	StatusCooking          OrderStatus = "COOKING"
	StatusReadyForDelivery OrderStatus = "READY_FOR_DELIVERY"
	StatusDelivering       OrderStatus = "DELIVERING"
	StatusCompleted        OrderStatus = "COMPLETED"
	StatusCancelled        OrderStatus = "CANCELLED"
)

// Statuses lists every order status in lifecycle order.
var Statuses = []OrderStatus{
	StatusPending,
	StatusAccepted,
	StatusCooking,
	StatusReadyForDelivery,
	StatusDelivering,
	StatusCompleted,
	StatusCancelled,
}

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:          {StatusAccepted, StatusCancelled},
	StatusAccepted:         {StatusCooking, StatusCancelled},
	StatusCooking:          {StatusReadyForDelivery, StatusCancelled},
	StatusReadyForDelivery: {StatusDelivering, StatusCancelled},
	StatusDelivering:       {StatusCompleted, StatusCancelled},
	StatusCompleted:        {},
	StatusCancelled:        {},
}

// ParseStatus accepts any casing and surrounding whitespace.
func ParseStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown order status %q", ErrInvalidRequest, s)
	}
	return status, nil
}

func (s OrderStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether next is directly reachable from s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return slices.Contains(transitions[s], next)
}

func (s OrderStatus) String() string { return string(s) }
