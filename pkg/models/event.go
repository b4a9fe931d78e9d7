package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies what a signal source observed.
type EventType string

const (
	EventValueChanged     EventType = "value_changed"
	EventThresholdCrossed EventType = "threshold_crossed"
	EventStateChanged     EventType = "state_changed"
	EventDetected         EventType = "detected"
	EventCreated          EventType = "created"
	EventModified         EventType = "modified"
	EventDeleted          EventType = "deleted"
	EventMoved            EventType = "moved"
)

// SignalEvent is the unit of information flowing from sources through the
// bus into pipelines and out to WebSocket clients.
type SignalEvent struct {
	ID         string         `json:"id"`
	SourceType string         `json:"source_type"`
	SourceName string         `json:"source_name"`
	EventType  EventType      `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data"`
	Metadata   map[string]any `json:"metadata"`
}

// NewSignalEvent builds an event with a fresh UUID and a UTC timestamp.
// Source identity is stamped by the emitting source before publication.
func NewSignalEvent(eventType EventType, data, metadata map[string]any) SignalEvent {
	if data == nil {
		data = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return SignalEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Metadata:  metadata,
	}
}

// Payload returns the traversal payload for pipeline execution: the event's
// serialized form with top-level identity fields alongside data and metadata.
func (e SignalEvent) Payload() map[string]any {
	return map[string]any{
		"id":          e.ID,
		"source_type": e.SourceType,
		"source_name": e.SourceName,
		"event_type":  string(e.EventType),
		"timestamp":   e.Timestamp.UTC().Format(time.RFC3339Nano),
		"data":        CopyMap(e.Data),
		"metadata":    CopyMap(e.Metadata),
	}
}

// CopyMap deep-copies a payload map. Nested maps and slices are copied;
// scalar values are shared (they are immutable in payload terms).
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
