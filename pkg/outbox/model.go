package outbox

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

const HeaderEventID = "event_id"

// Message is what a producer hands to a store to be written in the same
// transaction as the state change it describes.
type Message struct {
	EventID       string
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
}

// NewMessage stamps a fresh event id on the message.
func NewMessage(aggregateType, aggregateID, eventType string, payload []byte) Message {
	return Message{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       payload,
		Headers:       map[string]string{},
	}
}

type Event struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	LeaseUntil    *time.Time
	RetryCount    int
	LastError     *string
}

func (e Event) aggregateKey() string {
	return e.AggregateType + "/" + e.AggregateID
}
