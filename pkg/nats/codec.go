package nats

import (
	"encoding/json"
	"strings"
	"time"

	"oncare-chatbot-be/pkg/events"
)

// Decode rebuilds an event from a bus message. The type comes from the subject and the
// timestamp from "occurred_at" when present.
func Decode(subject string, data []byte) (events.BaseEvent, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return events.BaseEvent{}, err
	}

	occurredAt := time.Now()
	if raw, ok := payload["occurred_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			occurredAt = ts
		}
		delete(payload, "occurred_at")
	}

	return events.BaseEvent{
		Type:       strings.TrimPrefix(subject, SubjectPrefix),
		Data:       payload,
		OccurredAt: occurredAt,
	}, nil
}
