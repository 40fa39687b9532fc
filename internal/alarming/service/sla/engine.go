package sla

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/faultline/internal/alarming/events"
	"github.com/ispops/faultline/internal/alarming/metrics"
	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/rs/zerolog/log"
)

// Breach policy margins in percentage points: a shortfall under atRiskMargin
// only flags the instance at_risk, one at or past criticalMargin grades the
// breach critical.
const (
	atRiskMargin   = 0.5
	criticalMargin = 2.0
)

// Engine updates SLA instance availability, detects breaches, and computes
// compliance time series from alarm downtime and maintenance windows.
type Engine struct {
	store       Store
	alarms      AlarmSource
	maintenance MaintenanceSource
	cache       Cache
	dispatcher  *events.Dispatcher
	cfg         Config

	nowFn func() time.Time
}

func NewEngine(store Store, alarms AlarmSource, maintenance MaintenanceSource, cache Cache, dispatcher *events.Dispatcher, cfg Config) *Engine {
	cfg.applyDefaults()
	if cache == nil {
		cache = NoopCache{}
	}
	return &Engine{
		store:       store,
		alarms:      alarms,
		maintenance: maintenance,
		cache:       cache,
		dispatcher:  dispatcher,
		cfg:         cfg,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordDowntime adds minutes to the instance counters, recomputes
// availability and runs the breach check, all inside one transaction.
func (e *Engine) RecordDowntime(ctx context.Context, tenantID, instanceID string, minutes float64, planned bool) error {
	if minutes < 0 {
		return &model.InvalidStateError{Reason: "downtime minutes cannot be negative"}
	}
	var detected *model.SLABreach
	err := e.store.WithTx(ctx, func(tx Store) error {
		inst, err := tx.GetInstance(ctx, tenantID, instanceID)
		if err != nil {
			return err
		}
		def, err := tx.GetDefinition(ctx, tenantID, inst.DefinitionID)
		if err != nil {
			return err
		}
		inst.TotalDowntime += minutes
		if planned {
			inst.PlannedDowntime += minutes
		} else {
			inst.UnplannedDowntime += minutes
		}
		inst.CurrentAvailability = calculateAvailability(inst, def)

		detected, err = e.checkAvailabilityBreach(ctx, tx, inst, def)
		if err != nil {
			return err
		}
		return tx.UpdateInstance(ctx, inst)
	})
	if err != nil {
		return err
	}
	if detected != nil {
		e.publishBreach(detected)
	}
	return nil
}

// CheckAlarmImpact evaluates the alarm against every enabled SLA instance of
// its customer: response-time SLA once acknowledged, and downtime recording
// once the alarm has an end timestamp.
func (e *Engine) CheckAlarmImpact(ctx context.Context, a *model.Alarm) error {
	if a.CustomerID == "" {
		return nil
	}
	instances, err := e.store.ListInstances(ctx, a.TenantID, a.CustomerID, true)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		def, err := e.store.GetDefinition(ctx, a.TenantID, inst.DefinitionID)
		if err != nil {
			return err
		}
		if a.AcknowledgedAt != nil {
			target := def.ResponseTargetFor(a.Severity)
			actual := a.AcknowledgedAt.Sub(a.FirstOccurrence).Minutes()
			if err := e.checkTimeBreach(ctx, inst, a, model.BreachResponseTime, actual, target); err != nil {
				return err
			}
		}
		if end := a.EndedAt(); !end.IsZero() {
			minutes := end.Sub(a.FirstOccurrence).Minutes()
			if minutes < 0 {
				minutes = 0
			}
			if err := e.RecordDowntime(ctx, a.TenantID, inst.ID, minutes, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckAlarmResolution checks the resolution-time SLA for a resolved alarm.
func (e *Engine) CheckAlarmResolution(ctx context.Context, a *model.Alarm) error {
	if a.CustomerID == "" || a.ResolvedAt == nil {
		return nil
	}
	instances, err := e.store.ListInstances(ctx, a.TenantID, a.CustomerID, true)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		def, err := e.store.GetDefinition(ctx, a.TenantID, inst.DefinitionID)
		if err != nil {
			return err
		}
		target := def.ResolutionTargetFor(a.Severity)
		actual := a.ResolvedAt.Sub(a.FirstOccurrence).Minutes()
		if err := e.checkTimeBreach(ctx, inst, a, model.BreachResolutionTime, actual, target); err != nil {
			return err
		}
	}
	return nil
}

// checkTimeBreach records a response/resolution-time breach when actual
// exceeds the target. A zero target means no SLA at that level.
func (e *Engine) checkTimeBreach(ctx context.Context, inst *model.SLAInstance, a *model.Alarm, bt model.BreachType, actual, target float64) error {
	if target <= 0 || actual <= target {
		return nil
	}
	deviation := (actual - target) / target * 100
	var detected *model.SLABreach
	err := e.store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.FindOpenBreach(ctx, inst.ID, bt)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		cur, err := tx.GetInstance(ctx, inst.TenantID, inst.ID)
		if err != nil {
			return err
		}
		now := e.nowFn()
		b := &model.SLABreach{
			ID:               uuid.NewString(),
			TenantID:         inst.TenantID,
			InstanceID:       inst.ID,
			BreachType:       bt,
			Severity:         model.BreachSeverityForAlarm(a.Severity),
			TargetValue:      target,
			ActualValue:      actual,
			DeviationPercent: round4(deviation),
			AlarmID:          a.ID,
			CreatedAt:        now,
		}
		if err := tx.InsertBreach(ctx, b); err != nil {
			return err
		}
		cur.BreachCount++
		cur.LastBreachAt = &now
		if err := tx.UpdateInstance(ctx, cur); err != nil {
			return err
		}
		detected = b
		return nil
	})
	if err != nil {
		return err
	}
	if detected != nil {
		e.publishBreach(detected)
	}
	return nil
}

// checkAvailabilityBreach applies the breach policy to the instance's current
// availability. It mutates inst's status/counters; the caller persists inst.
// Returns the breach only when a new record was created.
func (e *Engine) checkAvailabilityBreach(ctx context.Context, tx Store, inst *model.SLAInstance, def *model.SLADefinition) (*model.SLABreach, error) {
	target := def.TargetPercent()
	difference := target - inst.CurrentAvailability
	if difference <= 0 {
		inst.Status = model.SLACompliant
		return nil, nil
	}
	if difference < atRiskMargin {
		inst.Status = model.SLAAtRisk
		return nil, nil
	}
	inst.Status = model.SLABreached

	existing, err := tx.FindOpenBreach(ctx, inst.ID, model.BreachAvailability)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Same ongoing breach, nothing new to record.
		return nil, nil
	}

	severity := model.BreachSevHigh
	if difference >= criticalMargin {
		severity = model.BreachSevCritical
	}
	now := e.nowFn()
	b := &model.SLABreach{
		ID:               uuid.NewString(),
		TenantID:         inst.TenantID,
		InstanceID:       inst.ID,
		BreachType:       model.BreachAvailability,
		Severity:         severity,
		TargetValue:      target,
		ActualValue:      inst.CurrentAvailability,
		DeviationPercent: round4(difference / target * 100),
		CreatedAt:        now,
	}
	if err := tx.InsertBreach(ctx, b); err != nil {
		return nil, err
	}
	inst.BreachCount++
	inst.LastBreachAt = &now
	return b, nil
}

// calculateAvailability recomputes the 0-100 availability percentage from the
// instance counters. When the definition excludes maintenance only unplanned
// downtime counts. An empty or inverted period is defined as 100.
func calculateAvailability(inst *model.SLAInstance, def *model.SLADefinition) float64 {
	totalMinutes := inst.EndDate.Sub(inst.StartDate).Minutes()
	if totalMinutes <= 0 {
		return 100
	}
	downtime := inst.TotalDowntime
	if def.ExcludeMaintenance {
		downtime = inst.UnplannedDowntime
	}
	availability := (totalMinutes - downtime) / totalMinutes * 100
	if availability < 0 {
		availability = 0
	}
	if availability > 100 {
		availability = 100
	}
	return round4(availability)
}

func (e *Engine) publishBreach(b *model.SLABreach) {
	metrics.BreachesDetected.WithLabelValues(b.TenantID, string(b.BreachType)).Inc()
	log.Warn().
		Str("tenant", b.TenantID).
		Str("instance", b.InstanceID).
		Str("breach_type", string(b.BreachType)).
		Str("severity", string(b.Severity)).
		Float64("target", b.TargetValue).
		Float64("actual", b.ActualValue).
		Msg("sla breach detected")
	if e.dispatcher != nil {
		e.dispatcher.Publish(model.Event{
			Type:       model.EventBreachDetected,
			TenantID:   b.TenantID,
			InstanceID: b.InstanceID,
			BreachID:   b.ID,
			AlarmID:    b.AlarmID,
			Fields:     map[string]string{"breach_type": string(b.BreachType), "severity": string(b.Severity)},
		})
	}
}

// InvalidateComplianceCache drops every cached series for the tenant.
func (e *Engine) InvalidateComplianceCache(ctx context.Context, tenantID string) error {
	return e.cache.InvalidateTenant(ctx, tenantID)
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
