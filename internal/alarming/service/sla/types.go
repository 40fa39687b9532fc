package sla

import (
	"context"
	"time"

	"github.com/ispops/faultline/internal/alarming/model"
)

// Store abstracts SLA persistence. Counter mutations and breach creation run
// through WithTx: fn receives a transactional Store and either everything
// commits or nothing does, so a failed breach insert rolls back the
// availability update with it.
type Store interface {
	CreateDefinition(ctx context.Context, d *model.SLADefinition) error
	GetDefinition(ctx context.Context, tenantID, id string) (*model.SLADefinition, error)

	CreateInstance(ctx context.Context, inst *model.SLAInstance) error
	GetInstance(ctx context.Context, tenantID, id string) (*model.SLAInstance, error)
	UpdateInstance(ctx context.Context, inst *model.SLAInstance) error
	ListInstances(ctx context.Context, tenantID, customerID string, enabledOnly bool) ([]*model.SLAInstance, error)

	// FindOpenBreach returns the unresolved breach for (instance, type),
	// (nil, nil) when none exists.
	FindOpenBreach(ctx context.Context, instanceID string, bt model.BreachType) (*model.SLABreach, error)
	InsertBreach(ctx context.Context, b *model.SLABreach) error
	ListOpenBreaches(ctx context.Context, tenantID, customerID string) ([]*model.SLABreach, error)

	WithTx(ctx context.Context, fn func(Store) error) error
}

// AlarmSource provides the alarms whose downtime overlaps a range.
type AlarmSource interface {
	ListOverlapping(ctx context.Context, tenantID, customerID string, from, to time.Time) ([]*model.Alarm, error)
}

// MaintenanceSource provides the maintenance windows overlapping a range.
type MaintenanceSource interface {
	ListOverlapping(ctx context.Context, tenantID string, from, to time.Time) ([]*model.MaintenanceWindow, error)
}

// Cache holds computed compliance series under a short TTL. Implementations
// must support dropping every entry for a tenant when its alarms or
// maintenance windows change.
type Cache interface {
	Get(ctx context.Context, key string) ([]model.ComplianceDay, bool, error)
	Set(ctx context.Context, key string, days []model.ComplianceDay, ttl time.Duration) error
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// Config carries the engine tunables.
type Config struct {
	// CacheTTL bounds how long a computed compliance series is reused.
	CacheTTL time.Duration
	// MaxRangeDays caps one timeseries query; longer ranges are rejected.
	MaxRangeDays int
}

func (c *Config) applyDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.MaxRangeDays <= 0 {
		c.MaxRangeDays = 366
	}
}
