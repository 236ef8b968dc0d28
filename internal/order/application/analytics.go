package application

import (
	"context"
	"fmt"
	"time"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/pkg/auth"
)

const DefaultAnalyticsWindow = 7 * 24 * time.Hour

type Summary struct {
	From        time.Time                  `json:"from"`
	To          time.Time                  `json:"to"`
	TotalOrders int                        `json:"totalOrders"`
	Revenue     int64                      `json:"revenue"`
	ByStatus    map[domain.OrderStatus]int `json:"byStatus"`
}

// AnalyticsSummary aggregates the orders placed in [from, to]. A nil from
// defaults to seven days before now and a nil to defaults to now.
func (s *Service) AnalyticsSummary(ctx context.Context, caller auth.Caller, from, to *time.Time) (Summary, error) {
	if err := requireAdmin(caller); err != nil {
		return Summary{}, err
	}

	now := s.now().UTC()
	end := now
	if to != nil {
		end = to.UTC()
	}
	start := now.Add(-DefaultAnalyticsWindow)
	if from != nil {
		start = from.UTC()
	}
	if start.After(end) {
		return Summary{}, fmt.Errorf("%w: from must not be after to", domain.ErrInvalidRequest)
	}

	orders, err := s.store.FindByDateRange(ctx, start, end)
	if err != nil {
		return Summary{}, err
	}
	sum := Summarize(orders)
	sum.From, sum.To = start, end
	return sum, nil
}

// Summarize counts orders by status. Revenue only includes completed orders.
func Summarize(orders []domain.Order) Summary {
	sum := Summary{ByStatus: make(map[domain.OrderStatus]int)}
	for _, o := range orders {
		sum.TotalOrders++
		sum.ByStatus[o.Status]++
		if o.Status == domain.StatusCompleted {
			sum.Revenue += o.TotalPrice
		}
	}
	return sum
}
