package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event is a committed domain change published on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	// Topics names every record set the change touched.
	Topics  []string
	Payload any
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(kind string, topics []string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now(),
		Topics:    topics,
		Payload:   payload,
	}
}
