package domain

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type OrderCreated struct {
	OrderID int64 `json:"orderId"`
	UserID  int64 `json:"userId"`
}

type OrderStatusChanged struct {
	OrderID int64       `json:"orderId"`
	Status  OrderStatus `json:"status"`
}
