package models

import "time"

// EventType names a monitor lifecycle or data event
type EventType string

const (
	EventStarted       EventType = "started"
	EventStopped       EventType = "stopped"
	EventMetrics       EventType = "metrics"
	EventAlert         EventType = "alert"
	EventAlertResolved EventType = "alertResolved"
	EventError         EventType = "error"
)

// ErrorReport is the payload of an error event fired by TrackError
type ErrorReport struct {
	Source    string         `json:"source,omitempty"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Event is delivered to subscribers. Exactly one of Snapshot, Alert and
// Error is set for metrics, alert/alertResolved and error events.
type Event struct {
	Type      EventType    `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Snapshot  *Snapshot    `json:"snapshot,omitempty"`
	Alert     *Alert       `json:"alert,omitempty"`
	Error     *ErrorReport `json:"error,omitempty"`
}

// Payload returns whichever payload the event carries, or nil
func (e Event) Payload() any {
	switch {
	case e.Snapshot != nil:
		return e.Snapshot
	case e.Alert != nil:
		return e.Alert
	case e.Error != nil:
		return e.Error
	default:
		return nil
	}
}
