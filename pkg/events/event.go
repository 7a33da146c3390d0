package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the dotted event code (e.g., "action.applied").
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

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// wire is the serialized form; type and time travel with the data so
// consumers do not have to guess them from the subject.
type wire struct {
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

func Encode(e Event) ([]byte, error) {
	return json.Marshal(wire{Type: e.EventType(), OccurredAt: e.Timestamp(), Data: e.Payload()})
}

func Decode(data []byte) (BaseEvent, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return BaseEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if w.Type == "" {
		return BaseEvent{}, fmt.Errorf("decode event: missing type")
	}
	return BaseEvent{Type: w.Type, Data: w.Data, OccurredAt: w.OccurredAt}, nil
}
