package correlation

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/faultline/internal/alarming/events"
	"github.com/ispops/faultline/internal/alarming/metrics"
	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/rs/zerolog/log"
)

// AlarmLookup is the slice of the alarm store the engine reads and mutates.
// Find methods return (nil, nil) when nothing matches.
type AlarmLookup interface {
	Get(ctx context.Context, tenantID, id string) (*model.Alarm, error)
	Update(ctx context.Context, a *model.Alarm) error
	FindDuplicate(ctx context.Context, tenantID, alarmID, alarmType, resourceID, excludeID string) (*model.Alarm, error)
	FindRecentSimilar(ctx context.Context, tenantID, alarmType, resourceID, excludeID string, since time.Time) (*model.Alarm, error)
	ListOpen(ctx context.Context, tenantID string) ([]*model.Alarm, error)
	ListOpenSince(ctx context.Context, tenantID string, since time.Time) ([]*model.Alarm, error)
	ListByCorrelation(ctx context.Context, tenantID, correlationID string) ([]*model.Alarm, error)
}

// RuleSource lists enabled rules in ascending priority order.
type RuleSource interface {
	ListRules(ctx context.Context, tenantID string, ruleType model.RuleType, enabledOnly bool) ([]*model.AlarmRule, error)
}

// Config carries the engine tunables.
type Config struct {
	// SimilarityWindow bounds step-3 grouping of same-type same-resource
	// alarms without an exact duplicate.
	SimilarityWindow time.Duration
	// FlapThreshold is the occurrence count past which an alarm is reported
	// as flapping. Flapping is informational only; the engine never
	// auto-suppresses, a suppression rule can act on the exposed count.
	FlapThreshold int
}

func (c *Config) applyDefaults() {
	if c.SimilarityWindow <= 0 {
		c.SimilarityWindow = 5 * time.Minute
	}
	if c.FlapThreshold <= 0 {
		c.FlapThreshold = 5
	}
}

// Engine links related alarms into root-cause/child groups, detects
// duplicates, and applies suppression policies, driven by tenant rules.
type Engine struct {
	alarms     AlarmLookup
	rules      RuleSource
	dispatcher *events.Dispatcher
	cfg        Config
}

func NewEngine(alarms AlarmLookup, rules RuleSource, dispatcher *events.Dispatcher, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{alarms: alarms, rules: rules, dispatcher: dispatcher, cfg: cfg}
}

// Correlate runs the full pipeline on one alarm, mutating it (and possibly a
// parent or duplicate) in place:
//
//  1. suppression rules, priority ascending, first match suppresses and stops
//  2. exact duplicate detection (same external id, type, resource)
//  3. similarity grouping within the trailing window
//  4. topology rules: become a root, or attach to a parent seen within the
//     rule's time window
//
// An alarm no step claims stays uncorrelated, which is valid and common.
func (e *Engine) Correlate(ctx context.Context, a *model.Alarm) error {
	if a.Status == model.StatusCleared {
		return nil
	}

	if e.IsFlapping(a) {
		e.publish(model.Event{Type: model.EventAlarmFlapping, TenantID: a.TenantID, AlarmID: a.ID,
			Fields: map[string]string{"occurrence_count": strconv.Itoa(a.OccurrenceCount)}})
	}

	suppressed, err := e.applySuppression(ctx, a)
	if err != nil {
		return err
	}
	if suppressed {
		return nil
	}

	grouped, err := e.groupWithDuplicate(ctx, a)
	if err != nil {
		return err
	}
	if grouped {
		return nil
	}

	grouped, err = e.groupWithSimilar(ctx, a)
	if err != nil {
		return err
	}
	if grouped {
		return nil
	}

	return e.applyTopologyRules(ctx, a)
}

func (e *Engine) applySuppression(ctx context.Context, a *model.Alarm) (bool, error) {
	ruleList, err := e.rules.ListRules(ctx, a.TenantID, model.RuleTypeSuppression, true)
	if err != nil {
		return false, err
	}
	for _, r := range ruleList {
		if r.Suppression == nil {
			// Fail closed on a malformed rule instead of aborting the alarm.
			log.Warn().Str("tenant", a.TenantID).Str("rule", r.ID).Msg("suppression rule has no predicate, skipping")
			continue
		}
		if !r.Suppression.Matches(a) {
			continue
		}
		a.Status = model.StatusSuppressed
		if err := e.alarms.Update(ctx, a); err != nil {
			return false, err
		}
		metrics.AlarmsSuppressed.WithLabelValues(a.TenantID, "rule").Inc()
		e.publish(model.Event{Type: model.EventAlarmSuppressed, TenantID: a.TenantID, AlarmID: a.ID,
			Fields: map[string]string{"rule_id": r.ID}})
		log.Info().Str("tenant", a.TenantID).Str("alarm", a.ID).Str("rule", r.Name).Msg("alarm suppressed by rule")
		return true, nil
	}
	return false, nil
}

func (e *Engine) groupWithDuplicate(ctx context.Context, a *model.Alarm) (bool, error) {
	dup, err := e.alarms.FindDuplicate(ctx, a.TenantID, a.AlarmID, a.AlarmType, a.ResourceID, a.ID)
	if err != nil {
		return false, err
	}
	if dup == nil {
		return false, nil
	}
	return true, e.joinGroup(ctx, a, dup, "duplicate")
}

func (e *Engine) groupWithSimilar(ctx context.Context, a *model.Alarm) (bool, error) {
	since := a.FirstOccurrence.Add(-e.cfg.SimilarityWindow)
	sim, err := e.alarms.FindRecentSimilar(ctx, a.TenantID, a.AlarmType, a.ResourceID, a.ID, since)
	if err != nil {
		return false, err
	}
	if sim == nil {
		return false, nil
	}
	return true, e.joinGroup(ctx, a, sim, "similarity")
}

// joinGroup shares the peer's correlation id with a, minting one on the peer
// first when it has none. No parent/child edge is created for this case.
func (e *Engine) joinGroup(ctx context.Context, a, peer *model.Alarm, kind string) error {
	if peer.CorrelationID == "" {
		peer.CorrelationID = uuid.NewString()
		if err := e.alarms.Update(ctx, peer); err != nil {
			return err
		}
	}
	if a.CorrelationID == peer.CorrelationID {
		return nil
	}
	a.CorrelationID = peer.CorrelationID
	if err := e.alarms.Update(ctx, a); err != nil {
		return err
	}
	metrics.AlarmsCorrelated.WithLabelValues(a.TenantID, kind).Inc()
	e.publish(model.Event{Type: model.EventAlarmCorrelated, TenantID: a.TenantID, AlarmID: a.ID, CorrelationID: a.CorrelationID,
		Fields: map[string]string{"kind": kind, "peer_id": peer.ID}})
	return nil
}

func (e *Engine) applyTopologyRules(ctx context.Context, a *model.Alarm) error {
	ruleList, err := e.rules.ListRules(ctx, a.TenantID, model.RuleTypeCorrelation, true)
	if err != nil {
		return err
	}
	for _, r := range ruleList {
		p := r.Correlation
		if p == nil || p.TimeWindowMinutes <= 0 {
			log.Warn().Str("tenant", a.TenantID).Str("rule", r.ID).Msg("correlation rule has no usable predicate, skipping")
			continue
		}

		if a.CorrelationID == "" && p.MatchesParent(a) {
			a.CorrelationID = uuid.NewString()
			if p.MarkRootCause {
				a.IsRootCause = true
				a.ParentAlarmID = ""
			}
			if err := e.alarms.Update(ctx, a); err != nil {
				return err
			}
			metrics.AlarmsCorrelated.WithLabelValues(a.TenantID, "root").Inc()
			e.publish(model.Event{Type: model.EventAlarmCorrelated, TenantID: a.TenantID, AlarmID: a.ID, CorrelationID: a.CorrelationID,
				Fields: map[string]string{"kind": "root", "rule_id": r.ID}})
			return nil
		}

		if !p.MatchesChild(a) {
			continue
		}
		parent, err := e.findParent(ctx, a, p)
		if err != nil {
			return err
		}
		if parent == nil {
			continue
		}
		if parent.CorrelationID == "" {
			parent.CorrelationID = uuid.NewString()
			parent.IsRootCause = true
			if err := e.alarms.Update(ctx, parent); err != nil {
				return err
			}
		}
		a.CorrelationID = parent.CorrelationID
		a.ParentAlarmID = parent.ID
		a.IsRootCause = false
		if err := e.alarms.Update(ctx, a); err != nil {
			return err
		}
		metrics.AlarmsCorrelated.WithLabelValues(a.TenantID, "child").Inc()
		e.publish(model.Event{Type: model.EventAlarmCorrelated, TenantID: a.TenantID, AlarmID: a.ID, CorrelationID: a.CorrelationID,
			Fields: map[string]string{"kind": "child", "parent_id": parent.ID, "rule_id": r.ID}})
		log.Info().Str("tenant", a.TenantID).Str("alarm", a.ID).Str("parent", parent.ID).Str("rule", r.Name).Msg("alarm correlated to parent")
		return nil
	}
	return nil
}

// findParent looks for an open alarm matching the rule's parent side whose
// first occurrence precedes the child's by at most the rule window. The
// boundary is inclusive: a gap of exactly the window still correlates.
func (e *Engine) findParent(ctx context.Context, child *model.Alarm, p *model.CorrelationPredicate) (*model.Alarm, error) {
	since := child.FirstOccurrence.Add(-p.Window())
	candidates, err := e.alarms.ListOpenSince(ctx, child.TenantID, since)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if c.ID == child.ID || c.Status == model.StatusSuppressed {
			continue
		}
		if c.FirstOccurrence.After(child.FirstOccurrence) {
			continue
		}
		if p.MatchesParent(c) {
			return c, nil
		}
	}
	return nil, nil
}

// RecorrelateAll re-runs the full pipeline on every active or acknowledged
// tenant alarm in creation order, so later-added rules retroactively link
// earlier alarms. Returns the number of alarms processed.
func (e *Engine) RecorrelateAll(ctx context.Context, tenantID string) (int, error) {
	open, err := e.alarms.ListOpen(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, a := range open {
		if a.Status != model.StatusActive && a.Status != model.StatusAcknowledged {
			continue
		}
		if err := e.Correlate(ctx, a); err != nil {
			return processed, err
		}
		processed++
	}
	log.Info().Str("tenant", tenantID).Int("processed", processed).Msg("recorrelation pass finished")
	return processed, nil
}

// Group returns every alarm sharing the target alarm's correlation id. The
// status mutation for clear-group cascades stays with the alarm service;
// this engine only exposes the lookup.
func (e *Engine) Group(ctx context.Context, tenantID, alarmID string) ([]*model.Alarm, error) {
	a, err := e.alarms.Get(ctx, tenantID, alarmID)
	if err != nil {
		return nil, err
	}
	if a.CorrelationID == "" {
		return []*model.Alarm{a}, nil
	}
	return e.alarms.ListByCorrelation(ctx, tenantID, a.CorrelationID)
}

// IsFlapping reports whether the alarm's occurrence count crossed the
// configured threshold.
func (e *Engine) IsFlapping(a *model.Alarm) bool {
	return a.OccurrenceCount > e.cfg.FlapThreshold
}

func (e *Engine) publish(ev model.Event) {
	if e.dispatcher != nil {
		e.dispatcher.Publish(ev)
	}
}

