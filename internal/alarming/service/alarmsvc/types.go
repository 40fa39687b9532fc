package alarmsvc

import (
	"context"
	"time"

	"github.com/ispops/faultline/internal/alarming/model"
)

// AlarmStore abstracts alarm persistence. Lookup methods return (nil, nil)
// when nothing matches; only real failures are errors.
type AlarmStore interface {
	Insert(ctx context.Context, a *model.Alarm) error
	Update(ctx context.Context, a *model.Alarm) error
	Get(ctx context.Context, tenantID, id string) (*model.Alarm, error)

	// FindOpenByExternal locates a non-cleared alarm with the same external
	// id and resource, the dedup target at creation time.
	FindOpenByExternal(ctx context.Context, tenantID, alarmID, resourceID string) (*model.Alarm, error)

	// FindDuplicate locates a non-cleared alarm with the same external id,
	// alarm type and resource, excluding the given row id.
	FindDuplicate(ctx context.Context, tenantID, alarmID, alarmType, resourceID, excludeID string) (*model.Alarm, error)

	// FindRecentSimilar locates a non-cleared alarm of the same type on the
	// same resource whose first occurrence is at or after since.
	FindRecentSimilar(ctx context.Context, tenantID, alarmType, resourceID, excludeID string, since time.Time) (*model.Alarm, error)

	// ListOpen returns all non-cleared tenant alarms, oldest first.
	ListOpen(ctx context.Context, tenantID string) ([]*model.Alarm, error)

	// ListOpenSince narrows ListOpen to alarms first seen at or after since.
	ListOpenSince(ctx context.Context, tenantID string, since time.Time) ([]*model.Alarm, error)

	ListByStatus(ctx context.Context, tenantID string, status model.Status, limit int) ([]*model.Alarm, error)
	ListByCorrelation(ctx context.Context, tenantID, correlationID string) ([]*model.Alarm, error)

	// ClearGroup bulk-transitions every non-cleared alarm sharing the
	// correlation id to cleared, returning how many rows changed.
	ClearGroup(ctx context.Context, tenantID, correlationID string, clearedAt time.Time) (int, error)

	// ListOverlapping returns alarms whose downtime interval
	// [first_occurrence, cleared/resolved/now] overlaps [from, to),
	// optionally narrowed to one customer.
	ListOverlapping(ctx context.Context, tenantID, customerID string, from, to time.Time) ([]*model.Alarm, error)
}

// MaintenanceStore abstracts maintenance window persistence.
type MaintenanceStore interface {
	Insert(ctx context.Context, w *model.MaintenanceWindow) error
	Get(ctx context.Context, tenantID, id string) (*model.MaintenanceWindow, error)
	UpdateStatus(ctx context.Context, tenantID, id string, status model.MaintenanceStatus) error

	// ActiveAt returns windows whose [start, end) contains at and whose
	// status is not completed.
	ActiveAt(ctx context.Context, tenantID string, at time.Time) ([]*model.MaintenanceWindow, error)

	// ListOverlapping returns windows overlapping [from, to).
	ListOverlapping(ctx context.Context, tenantID string, from, to time.Time) ([]*model.MaintenanceWindow, error)

	// ListPendingTransitions returns windows whose status lags the wall
	// clock: scheduled windows that have started, open windows that ended.
	ListPendingTransitions(ctx context.Context, now time.Time) ([]*model.MaintenanceWindow, error)
}

// Correlator is the slice of the correlation engine the alarm service needs.
type Correlator interface {
	Correlate(ctx context.Context, a *model.Alarm) error
}

// SLAChecker is the slice of the SLA engine invoked from alarm lifecycle ops.
type SLAChecker interface {
	CheckAlarmImpact(ctx context.Context, a *model.Alarm) error
	CheckAlarmResolution(ctx context.Context, a *model.Alarm) error
}

// CacheInvalidator drops cached compliance results for a tenant whenever
// alarms or maintenance windows change.
type CacheInvalidator interface {
	InvalidateTenant(ctx context.Context, tenantID string) error
}
