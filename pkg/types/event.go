package types

import "time"

type EventType string

const (
	EventOutage   EventType = "OUTAGE"
	EventDegraded EventType = "DEGRADED"
)

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
)

// Event is a single fault-isolation finding written to the event log.
type Event struct {
	Type       EventType `json:"event_type"`
	Timestamp  time.Time `json:"ts"`
	Target     string    `json:"target"`
	Details    string    `json:"details"`
	Severity   Severity  `json:"severity"`
	IncidentID string    `json:"incident_id,omitempty"`
}
