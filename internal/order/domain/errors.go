package domain

import "errors"

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrUserNotFound          = errors.New("user not found")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrPricingUnavailable    = errors.New("pricing unavailable")
	ErrOrderNotFound         = errors.New("order not found")
	ErrAccessDenied          = errors.New("access denied")
	ErrInvalidTransition     = errors.New("invalid status transition")
)
