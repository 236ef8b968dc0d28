package http

import (
	"time"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
)

type orderItemDTO struct {
	ID       int64 `json:"id"`
	DishID   int64 `json:"dishId"`
	Quantity int   `json:"quantity"`
	Price    int64 `json:"price"`
}

type paymentDTO struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type orderDTO struct {
	ID           int64          `json:"id"`
	Status       string         `json:"status"`
	OrderDate    time.Time      `json:"orderDate"`
	UserID       int64          `json:"userId"`
	RestaurantID int64          `json:"restaurantId"`
	TotalPrice   int64          `json:"totalPrice"`
	Items        []orderItemDTO `json:"items"`
	Payment      paymentDTO     `json:"payment"`
}

func toDTO(o domain.Order) orderDTO {
	items := make([]orderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemDTO{ID: it.ID, DishID: it.DishID, Quantity: it.Quantity, Price: it.Price})
	}
	return orderDTO{
		ID:           o.ID,
		Status:       string(o.Status),
		OrderDate:    o.OrderDate,
		UserID:       o.UserID,
		RestaurantID: o.RestaurantID,
		TotalPrice:   o.TotalPrice,
		Items:        items,
		Payment: paymentDTO{
			ID:     o.Payment.ID,
			Method: o.Payment.Method,
			Amount: o.Payment.Amount,
			Status: string(o.Payment.Status),
		},
	}
}

func toDTOs(orders []domain.Order) []orderDTO {
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toDTO(o))
	}
	return out
}
