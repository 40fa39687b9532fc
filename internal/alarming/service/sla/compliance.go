package sla

import (
	"context"
	"time"

	"github.com/ispops/faultline/internal/alarming/metrics"
	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/rs/zerolog/log"
)

const minutesPerDay = 1440

// ComplianceQuery parameterizes one timeseries computation. CustomerID may be
// empty to cover the whole tenant.
type ComplianceQuery struct {
	TenantID           string
	CustomerID         string
	StartDate          time.Time
	EndDate            time.Time
	TargetPercentage   float64
	ExcludeMaintenance bool
}

// CalculateComplianceTimeseries produces one record per calendar day in
// [StartDate, EndDate]: merged alarm downtime clipped to the day, maintenance
// subtracted when excluded, and a breach flag when compliance falls under the
// target. Results are served from the TTL cache when present.
func (e *Engine) CalculateComplianceTimeseries(ctx context.Context, q ComplianceQuery) ([]model.ComplianceDay, error) {
	if q.TenantID == "" {
		return nil, &model.ConfigurationError{Reason: "compliance query needs a tenant_id"}
	}
	startDay := dayFloor(q.StartDate)
	endDay := dayFloor(q.EndDate)
	if endDay.Before(startDay) {
		return nil, &model.ConfigurationError{Reason: "end_date precedes start_date"}
	}
	days := int(endDay.Sub(startDay).Hours()/24) + 1
	if days > e.cfg.MaxRangeDays {
		return nil, &model.ConfigurationError{Reason: "date range exceeds the maximum; narrow the query"}
	}

	key := cacheKey(q.TenantID, q.CustomerID, startDay, endDay, q.TargetPercentage, q.ExcludeMaintenance)
	if cached, ok, err := e.cache.Get(ctx, key); err != nil {
		log.Warn().Err(err).Str("tenant", q.TenantID).Msg("compliance cache read failed")
	} else if ok {
		metrics.ComplianceCacheHits.Inc()
		return cached, nil
	}
	metrics.ComplianceCacheMisses.Inc()

	rangeEnd := endDay.Add(24 * time.Hour)
	alarms, err := e.alarms.ListOverlapping(ctx, q.TenantID, q.CustomerID, startDay, rangeEnd)
	if err != nil {
		return nil, err
	}
	var windows []*model.MaintenanceWindow
	if q.ExcludeMaintenance {
		windows, err = e.maintenance.ListOverlapping(ctx, q.TenantID, startDay, rangeEnd)
		if err != nil {
			return nil, err
		}
	}

	now := e.nowFn()
	out := make([]model.ComplianceDay, 0, days)
	for day := startDay; !day.After(endDay); day = day.Add(24 * time.Hour) {
		out = append(out, e.complianceForDay(day, alarms, windows, q, now))
	}

	if err := e.cache.Set(ctx, key, out, e.cfg.CacheTTL); err != nil {
		log.Warn().Err(err).Str("tenant", q.TenantID).Msg("compliance cache write failed")
	}
	return out, nil
}

func (e *Engine) complianceForDay(day time.Time, alarms []*model.Alarm, windows []*model.MaintenanceWindow, q ComplianceQuery, now time.Time) model.ComplianceDay {
	dayEnd := day.Add(24 * time.Hour)

	var downtime []Interval
	for _, a := range alarms {
		if a.Status == model.StatusSuppressed {
			continue
		}
		end := a.EndedAt()
		if end.IsZero() {
			end = now
		}
		if iv, ok := Clip(Interval{Start: a.FirstOccurrence, End: end}, day, dayEnd); ok {
			downtime = append(downtime, iv)
		}
	}
	merged := Merge(downtime)

	if q.ExcludeMaintenance && len(windows) > 0 {
		var maint []Interval
		for _, w := range windows {
			if iv, ok := Clip(Interval{Start: w.StartTime, End: w.EndTime}, day, dayEnd); ok {
				maint = append(maint, iv)
			}
		}
		merged = Subtract(merged, maint)
	}

	downtimeMinutes := SumMinutes(merged)
	if downtimeMinutes > minutesPerDay {
		downtimeMinutes = minutesPerDay
	}
	uptimeMinutes := minutesPerDay - downtimeMinutes
	compliance := round2(uptimeMinutes / minutesPerDay * 100)

	breaches := 0
	if compliance < q.TargetPercentage {
		breaches = 1
	}
	return model.ComplianceDay{
		Date:                 day.Format("2006-01-02"),
		CompliancePercentage: compliance,
		TargetPercentage:     q.TargetPercentage,
		UptimeMinutes:        uptimeMinutes,
		DowntimeMinutes:      downtimeMinutes,
		SLABreaches:          breaches,
	}
}

// GetComplianceReport aggregates instances, open breaches and the daily
// series for a customer (or the whole tenant) over a period, defaulting to
// the trailing 30 days. The series target is the strictest availability
// target among the matched instances' definitions, 99.9 when none match.
func (e *Engine) GetComplianceReport(ctx context.Context, tenantID, customerID string, periodStart, periodEnd time.Time) (*model.ComplianceReport, error) {
	now := e.nowFn()
	if periodEnd.IsZero() {
		periodEnd = now
	}
	if periodStart.IsZero() {
		periodStart = periodEnd.AddDate(0, 0, -30)
	}

	instances, err := e.store.ListInstances(ctx, tenantID, customerID, false)
	if err != nil {
		return nil, err
	}
	breaches, err := e.store.ListOpenBreaches(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}

	target := 0.0
	exclude := false
	for _, inst := range instances {
		def, err := e.store.GetDefinition(ctx, tenantID, inst.DefinitionID)
		if err != nil {
			return nil, err
		}
		if t := def.TargetPercent(); t > target {
			target = t
		}
		exclude = exclude || def.ExcludeMaintenance
	}
	if target == 0 {
		target = 99.9
	}

	days, err := e.CalculateComplianceTimeseries(ctx, ComplianceQuery{
		TenantID:           tenantID,
		CustomerID:         customerID,
		StartDate:          periodStart,
		EndDate:            periodEnd,
		TargetPercentage:   target,
		ExcludeMaintenance: exclude,
	})
	if err != nil {
		return nil, err
	}

	return &model.ComplianceReport{
		TenantID:     tenantID,
		CustomerID:   customerID,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		Instances:    instances,
		OpenBreaches: breaches,
		Days:         days,
	}, nil
}

// dayFloor truncates t to its calendar-day boundary, preserving location.
func dayFloor(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
