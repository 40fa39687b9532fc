package model

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies alarm impact. Ordering matters for dedup updates:
// a repeated occurrence may raise severity but never lower it.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityMinor:    2,
	SeverityMajor:    3,
	SeverityCritical: 4,
}

// Rank returns the ordinal position of the severity, -1 for unknown values.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Source identifies where a fault event originated.
type Source string

const (
	SourceNetworkDevice Source = "network_device"
	SourceCPE           Source = "cpe"
	SourceService       Source = "service"
	SourceMonitoring    Source = "monitoring"
)

// Status is the alarm lifecycle state. Cleared is terminal.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusSuppressed   Status = "suppressed"
	StatusCleared      Status = "cleared"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool { return s == StatusCleared }

// Alarm is one fault event. AlarmID is the vendor/source-supplied external
// identifier and may repeat across occurrences; ID is the internal row id.
// Every query and mutation is scoped by TenantID.
type Alarm struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	AlarmID  string `json:"alarm_id"`

	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Source      Source   `json:"source"`
	AlarmType   string   `json:"alarm_type"`
	Status      Status   `json:"status"`

	FirstOccurrence time.Time  `json:"first_occurrence"`
	LastOccurrence  time.Time  `json:"last_occurrence"`
	OccurrenceCount int        `json:"occurrence_count"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	ClearedAt       *time.Time `json:"cleared_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`

	ResourceType    string `json:"resource_type,omitempty"`
	ResourceID      string `json:"resource_id,omitempty"`
	ResourceName    string `json:"resource_name,omitempty"`
	CustomerID      string `json:"customer_id,omitempty"`
	CustomerName    string `json:"customer_name,omitempty"`
	SubscriberCount int    `json:"subscriber_count,omitempty"`

	// CorrelationID is shared by all alarms in one correlated group; empty
	// means uncorrelated. A root-cause alarm has ParentAlarmID == "" and
	// IsRootCause == true; a child references its root via ParentAlarmID
	// and carries the parent's CorrelationID.
	CorrelationID string `json:"correlation_id,omitempty"`
	ParentAlarmID string `json:"parent_alarm_id,omitempty"`
	IsRootCause   bool   `json:"is_root_cause"`

	// TicketID is set at most once; linking a second ticket is an error.
	TicketID string `json:"ticket_id,omitempty"`

	Labels   map[string]string `json:"labels,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAlarm builds an active alarm for its first occurrence.
func NewAlarm(tenantID, alarmID string) *Alarm {
	now := time.Now().UTC()
	return &Alarm{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		AlarmID:         alarmID,
		Severity:        SeverityWarning,
		Status:          StatusActive,
		FirstOccurrence: now,
		LastOccurrence:  now,
		OccurrenceCount: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// EndedAt returns the time the alarm stopped counting as downtime: ClearedAt,
// else ResolvedAt, else the zero time for a still-open alarm.
func (a *Alarm) EndedAt() time.Time {
	if a.ClearedAt != nil {
		return *a.ClearedAt
	}
	if a.ResolvedAt != nil {
		return *a.ResolvedAt
	}
	return time.Time{}
}

// MergeOccurrence folds a repeated occurrence of the same external alarm into
// the existing row: severity rises monotonically, labels and metadata merge
// (new keys win), occurrence count and last occurrence advance.
func (a *Alarm) MergeOccurrence(severity Severity, labels, metadata map[string]string, at time.Time) {
	a.Severity = MaxSeverity(a.Severity, severity)
	if len(labels) > 0 {
		if a.Labels == nil {
			a.Labels = map[string]string{}
		}
		for k, v := range labels {
			a.Labels[k] = v
		}
	}
	if len(metadata) > 0 {
		if a.Metadata == nil {
			a.Metadata = map[string]string{}
		}
		for k, v := range metadata {
			a.Metadata[k] = v
		}
	}
	a.OccurrenceCount++
	if at.After(a.LastOccurrence) {
		a.LastOccurrence = at
	}
	a.UpdatedAt = time.Now().UTC()
}
