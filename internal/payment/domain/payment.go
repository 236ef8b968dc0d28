package domain

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPlaced    Status = "PLACED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Payment is owned by exactly one order. Amount always equals the order total
// and Status is settled once, when the order is built.
type Payment struct {
	ID     int64
	Method string
	Amount int64
	Status Status
}

func NewPayment(method string, amount int64) Payment {
	return Payment{
		Method: method,
		Amount: amount,
		Status: StatusPending,
	}
}
