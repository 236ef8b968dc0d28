package application

import (
	"strings"

	"github.com/dmehra2102/food-order-platform/internal/payment/domain"
)

const (
	MethodCard = "CARD"
	MethodCash = "CASH"
)

// NormalizeMethod folds a free-form payment method into the closed set used
// for strategy dispatch. Unknown and blank methods settle as cash.
func NormalizeMethod(method string) string {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case MethodCard:
		return MethodCard
	default:
		return MethodCash
	}
}

// Settle applies the settlement strategy for method and returns the payment
// with its status set. New methods are added as cases here.
func Settle(method string, p domain.Payment) domain.Payment {
	switch NormalizeMethod(method) {
	case MethodCard:
		p.Status = domain.StatusCompleted
	default:
		p.Status = domain.StatusPlaced
	}
	return p
}
