package model

import (
	"strings"
	"time"
)

// MaintenanceStatus is the lifecycle of a maintenance window.
type MaintenanceStatus string

const (
	MaintenanceScheduled  MaintenanceStatus = "scheduled"
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
)

// MaintenanceWindow is a tenant-scoped planned outage over [StartTime, EndTime).
// AffectedResources maps a pluralized resource-type key (e.g. "olts") to the
// resource ids covered by the window.
type MaintenanceWindow struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`

	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Status    MaintenanceStatus `json:"status"`

	SuppressAlarms    bool                `json:"suppress_alarms"`
	AffectedResources map[string][]string `json:"affected_resources,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the window is in effect at the given instant.
func (w *MaintenanceWindow) Active(at time.Time) bool {
	if w.Status == MaintenanceCompleted {
		return false
	}
	return !at.Before(w.StartTime) && at.Before(w.EndTime)
}

// Covers reports whether the window applies to the given resource. Keys are
// stored pluralized; the singular form is accepted too so callers can pass
// the alarm's resource_type verbatim.
func (w *MaintenanceWindow) Covers(resourceType, resourceID string) bool {
	if resourceID == "" || len(w.AffectedResources) == 0 {
		return false
	}
	for _, key := range []string{resourceType, pluralize(resourceType)} {
		for _, id := range w.AffectedResources[key] {
			if id == resourceID {
				return true
			}
		}
	}
	return false
}

func pluralize(s string) string {
	if s == "" || strings.HasSuffix(s, "s") {
		return s
	}
	return s + "s"
}
