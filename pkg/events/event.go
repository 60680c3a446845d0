package events

import "time"

// Event type codes. On the bus the subject is "events.<code>".
const (
	DocumentSubmitted = "DOCUMENT_SUBMITTED"
	DocumentIndexed   = "DOCUMENT_INDEXED"
	DocumentDeleted   = "DOCUMENT_DELETED"
	QueryAnswered     = "QUERY_ANSWERED"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "DOCUMENT_INDEXED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func New(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now()}
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// String reads a string field from the payload, returning "" when absent.
func (e BaseEvent) String(key string) string {
	v, _ := e.Data[key].(string)
	return v
}
