package notify

import (
	"encoding/json"
	"time"
)

type envelope struct {
	EventID    string            `json:"eventId"`
	EventType  Kind              `json:"eventType"`
	FileID     string            `json:"fileId"`
	Timestamp  string            `json:"timestamp"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Metadata   any               `json:"metadata,omitempty"`
	Resolution any               `json:"resolution,omitempty"`
}

// Encode renders event as the JSON document shared by every sink.
func Encode(event Event) ([]byte, error) {
	env := envelope{
		EventID:    event.ID,
		EventType:  event.Kind,
		FileID:     event.FileID,
		Timestamp:  event.OccurredAt.UTC().Format(time.RFC3339Nano),
		Attributes: event.Attributes,
	}
	switch {
	case event.Kind.IsMetadata():
		env.Metadata = event.Payload
	case event.Kind.IsConflict():
		env.Resolution = event.Payload
	}
	return json.Marshal(env)
}
