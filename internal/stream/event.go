// Package stream defines the producer contract every fusion input satisfies.
package stream

import (
	"time"
)

// Event is an immutable timestamped record emitted by a producer.
type Event struct {
	SourceID  string         `json:"source_id"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewEvent builds an event stamped with ts (UTC). A zero ts means now.
func NewEvent(sourceID, eventType string, ts time.Time, data map[string]any) Event {
	if ts.IsZero() {
		ts = time.Now()
	}
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		SourceID:  sourceID,
		EventType: eventType,
		Timestamp: ts.UTC(),
		Data:      data,
	}
}

// WithMetadata returns a copy of the event carrying md.
func (e Event) WithMetadata(md map[string]any) Event {
	e.Metadata = md
	return e
}

// Status is the health state of a data stream.
type Status int

const (
	// StatusIdle is the state of a stream that has never connected.
	StatusIdle Status = iota
	// StatusConnecting is held while Connect runs.
	StatusConnecting
	// StatusActive means the production loop is running.
	StatusActive
	// StatusPaused means the loop was stopped; the connection is kept.
	StatusPaused
	// StatusError is entered after too many consecutive failures. Only Start leaves it.
	StatusError
	// StatusClosed is terminal.
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusError:
		return "error"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText lets stats payloads render the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
