package model

import "time"

// SLADefinition is a tenant-scoped target template. AvailabilityTarget accepts
// either a 0-1 fraction or a 0-100 percentage; TargetPercent normalizes.
// Time targets are minutes; zero means no target at that level.
type SLADefinition struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`

	AvailabilityTarget   float64 `json:"availability_target"`
	ResponseTimeTarget   float64 `json:"response_time_target,omitempty"`
	ResolutionTimeTarget float64 `json:"resolution_time_target,omitempty"`

	ResponseBySeverity   map[Severity]float64 `json:"response_by_severity,omitempty"`
	ResolutionBySeverity map[Severity]float64 `json:"resolution_by_severity,omitempty"`

	MeasurementPeriodDays int  `json:"measurement_period_days"`
	ExcludeMaintenance    bool `json:"exclude_maintenance"`
}

// TargetPercent returns the availability target on the 0-100 scale.
func (d *SLADefinition) TargetPercent() float64 {
	if d.AvailabilityTarget <= 1 {
		return d.AvailabilityTarget * 100
	}
	return d.AvailabilityTarget
}

// ResponseTargetFor returns the response-time target in minutes for the given
// alarm severity, falling back to the overall target. Zero means none.
func (d *SLADefinition) ResponseTargetFor(s Severity) float64 {
	if t, ok := d.ResponseBySeverity[s]; ok && t > 0 {
		return t
	}
	return d.ResponseTimeTarget
}

// ResolutionTargetFor is ResponseTargetFor's counterpart for resolution time.
func (d *SLADefinition) ResolutionTargetFor(s Severity) float64 {
	if t, ok := d.ResolutionBySeverity[s]; ok && t > 0 {
		return t
	}
	return d.ResolutionTimeTarget
}

// SLAInstanceStatus tracks where an instance stands against its target.
type SLAInstanceStatus string

const (
	SLACompliant SLAInstanceStatus = "compliant"
	SLAAtRisk    SLAInstanceStatus = "at_risk"
	SLABreached  SLAInstanceStatus = "breached"
)

// SLAInstance binds one customer/service to a definition over a measurement
// period. Counters are minutes and are only mutated inside one transaction
// per call path; instances are closed at period end, never deleted.
type SLAInstance struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	DefinitionID string `json:"definition_id"`
	CustomerID   string `json:"customer_id"`
	ServiceID    string `json:"service_id,omitempty"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Enabled   bool      `json:"enabled"`

	TotalDowntime     float64 `json:"total_downtime"`
	PlannedDowntime   float64 `json:"planned_downtime"`
	UnplannedDowntime float64 `json:"unplanned_downtime"`

	// CurrentAvailability is a 0-100 percentage with 4-decimal precision.
	CurrentAvailability float64           `json:"current_availability"`
	Status              SLAInstanceStatus `json:"status"`
	BreachCount         int               `json:"breach_count"`
	LastBreachAt        *time.Time        `json:"last_breach_at,omitempty"`
}

// BreachType names the violated SLA metric.
type BreachType string

const (
	BreachAvailability   BreachType = "availability"
	BreachResponseTime   BreachType = "response_time"
	BreachResolutionTime BreachType = "resolution_time"
)

// BreachSeverity grades a breach independently of alarm severity.
type BreachSeverity string

const (
	BreachSevCritical BreachSeverity = "critical"
	BreachSevHigh     BreachSeverity = "high"
	BreachSevMedium   BreachSeverity = "medium"
	BreachSevLow      BreachSeverity = "low"
)

// BreachSeverityForAlarm derives a breach grade from the triggering alarm.
func BreachSeverityForAlarm(s Severity) BreachSeverity {
	switch s {
	case SeverityCritical:
		return BreachSevCritical
	case SeverityMajor:
		return BreachSevHigh
	case SeverityMinor:
		return BreachSevMedium
	default:
		return BreachSevLow
	}
}

// SLABreach is an append-only violation record. At most one unresolved breach
// exists per (instance, breach_type); re-detection of the same ongoing breach
// returns the existing row.
type SLABreach struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	InstanceID string `json:"instance_id"`

	BreachType BreachType     `json:"breach_type"`
	Severity   BreachSeverity `json:"severity"`

	TargetValue      float64 `json:"target_value"`
	ActualValue      float64 `json:"actual_value"`
	DeviationPercent float64 `json:"deviation_percent"`

	AlarmID string `json:"alarm_id,omitempty"`

	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ComplianceDay is one row of the daily compliance time series.
type ComplianceDay struct {
	Date                 string  `json:"date"` // YYYY-MM-DD
	CompliancePercentage float64 `json:"compliance_percentage"`
	TargetPercentage     float64 `json:"target_percentage"`
	UptimeMinutes        float64 `json:"uptime_minutes"`
	DowntimeMinutes      float64 `json:"downtime_minutes"`
	SLABreaches          int     `json:"sla_breaches"`
}

// ComplianceReport aggregates instances and breaches for a customer/period.
type ComplianceReport struct {
	TenantID     string          `json:"tenant_id"`
	CustomerID   string          `json:"customer_id,omitempty"`
	PeriodStart  time.Time       `json:"period_start"`
	PeriodEnd    time.Time       `json:"period_end"`
	Instances    []*SLAInstance  `json:"instances"`
	OpenBreaches []*SLABreach    `json:"open_breaches"`
	Days         []ComplianceDay `json:"days,omitempty"`
}
