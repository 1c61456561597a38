// internal/realtime/event.go
package realtime

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

const ShipmentsTopic = "shipments"

func NotificationsTopic(userID string) string { return "notifications:" + userID }

func MessagesTopic(shipmentID string) string { return "messages:" + shipmentID }

// Event is a change to one record. For updates Record holds only the changed
// fields, keyed by their JSON names; inserts carry the whole record.
type Event struct {
	Topic      string         `json:"topic"`
	Type       EventType      `json:"type"`
	ID         string         `json:"id"`
	Record     map[string]any `json:"record,omitempty"`
	Origin     string         `json:"origin,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewEvent builds an event whose Record is v's JSON object form.
func NewEvent(topic string, typ EventType, id string, v any) (Event, error) {
	rec, err := toRecord(v)
	if err != nil {
		return Event{}, err
	}
	return Event{Topic: topic, Type: typ, ID: id, Record: rec}, nil
}

// Decode unmarshals the record into v.
func (e Event) Decode(v any) error {
	b, err := json.Marshal(e.Record)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func toRecord(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec map[string]any
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
