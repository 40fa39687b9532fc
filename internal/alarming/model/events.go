package model

import "time"

// EventType names a domain event emitted by the engines. Events decouple
// best-effort side effects (tickets, notifications) from engine transactions:
// the engines publish after commit and never wait on consumers.
type EventType string

const (
	EventAlarmCreated    EventType = "alarm.created"
	EventAlarmCorrelated EventType = "alarm.correlated"
	EventAlarmSuppressed EventType = "alarm.suppressed"
	EventAlarmFlapping   EventType = "alarm.flapping"
	EventAlarmCleared    EventType = "alarm.cleared"
	EventBreachDetected  EventType = "sla.breach_detected"
)

// Event is the payload handed to event consumers.
type Event struct {
	Type     EventType `json:"type"`
	TenantID string    `json:"tenant_id"`
	At       time.Time `json:"at"`

	AlarmID       string `json:"alarm_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	InstanceID    string `json:"instance_id,omitempty"`
	BreachID      string `json:"breach_id,omitempty"`

	Fields map[string]string `json:"fields,omitempty"`
}
