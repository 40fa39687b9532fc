package alarmsvc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/faultline/internal/alarming/events"
	"github.com/ispops/faultline/internal/alarming/metrics"
	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/rs/zerolog/log"
)

// CreateInput is one inbound fault event mapped to alarm fields.
type CreateInput struct {
	TenantID    string            `json:"tenant_id"`
	AlarmID     string            `json:"alarm_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Severity    model.Severity    `json:"severity"`
	Source      model.Source      `json:"source"`
	AlarmType   string            `json:"alarm_type"`
	OccurredAt  time.Time         `json:"occurred_at"`

	ResourceType    string `json:"resource_type"`
	ResourceID      string `json:"resource_id"`
	ResourceName    string `json:"resource_name"`
	CustomerID      string `json:"customer_id"`
	CustomerName    string `json:"customer_name"`
	SubscriberCount int    `json:"subscriber_count"`

	Labels   map[string]string `json:"labels"`
	Metadata map[string]string `json:"metadata"`
}

// Service owns the alarm lifecycle: dedup at creation, maintenance
// suppression, correlation, SLA impact checks and cascading clears.
type Service struct {
	alarms      AlarmStore
	maintenance MaintenanceStore
	correlator  Correlator
	sla         SLAChecker
	dispatcher  *events.Dispatcher
	cache       CacheInvalidator

	nowFn func() time.Time
}

func NewService(alarms AlarmStore, maintenance MaintenanceStore, correlator Correlator, sla SLAChecker, dispatcher *events.Dispatcher, cache CacheInvalidator) *Service {
	return &Service{
		alarms:      alarms,
		maintenance: maintenance,
		correlator:  correlator,
		sla:         sla,
		dispatcher:  dispatcher,
		cache:       cache,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateAlarm ingests one fault event. A repeated occurrence of an open
// external alarm folds into the existing row (severity monotonic, tags
// merged, occurrence count bumped); otherwise a new alarm is created,
// suppressed outright when inside an active suppressing maintenance window,
// or run through correlation.
func (s *Service) CreateAlarm(ctx context.Context, in CreateInput) (*model.Alarm, bool, error) {
	if in.TenantID == "" || in.AlarmID == "" {
		return nil, false, &model.ConfigurationError{Reason: "alarm needs tenant_id and alarm_id"}
	}
	now := s.nowFn()
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	existing, err := s.alarms.FindOpenByExternal(ctx, in.TenantID, in.AlarmID, in.ResourceID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		existing.MergeOccurrence(in.Severity, in.Labels, in.Metadata, occurredAt)
		if err := s.alarms.Update(ctx, existing); err != nil {
			return nil, false, err
		}
		metrics.AlarmsDeduplicated.WithLabelValues(in.TenantID).Inc()
		s.invalidate(ctx, in.TenantID)
		return existing, false, nil
	}

	a := model.NewAlarm(in.TenantID, in.AlarmID)
	a.Title = in.Title
	a.Description = in.Description
	if in.Severity != "" {
		a.Severity = in.Severity
	}
	a.Source = in.Source
	a.AlarmType = in.AlarmType
	a.FirstOccurrence = occurredAt
	a.LastOccurrence = occurredAt
	a.ResourceType = in.ResourceType
	a.ResourceID = in.ResourceID
	a.ResourceName = in.ResourceName
	a.CustomerID = in.CustomerID
	a.CustomerName = in.CustomerName
	a.SubscriberCount = in.SubscriberCount
	a.Labels = in.Labels
	a.Metadata = in.Metadata

	// Maintenance suppression happens before correlation: an alarm born
	// inside a suppressing window never enters the correlation pipeline.
	inMaintenance, err := s.inSuppressingWindow(ctx, a, now)
	if err != nil {
		return nil, false, err
	}
	if inMaintenance {
		a.Status = model.StatusSuppressed
		if err := s.alarms.Insert(ctx, a); err != nil {
			return nil, false, err
		}
		metrics.AlarmsSuppressed.WithLabelValues(a.TenantID, "maintenance").Inc()
		s.publish(model.Event{Type: model.EventAlarmSuppressed, TenantID: a.TenantID, AlarmID: a.ID, Fields: map[string]string{"reason": "maintenance"}})
		s.invalidate(ctx, a.TenantID)
		return a, true, nil
	}

	if err := s.alarms.Insert(ctx, a); err != nil {
		return nil, false, err
	}
	metrics.AlarmsCreated.WithLabelValues(a.TenantID, string(a.Severity)).Inc()

	if s.correlator != nil {
		if err := s.correlator.Correlate(ctx, a); err != nil {
			return nil, false, err
		}
	}
	s.publish(model.Event{Type: model.EventAlarmCreated, TenantID: a.TenantID, AlarmID: a.ID, CorrelationID: a.CorrelationID})
	s.invalidate(ctx, a.TenantID)
	return a, true, nil
}

func (s *Service) inSuppressingWindow(ctx context.Context, a *model.Alarm, now time.Time) (bool, error) {
	if s.maintenance == nil {
		return false, nil
	}
	windows, err := s.maintenance.ActiveAt(ctx, a.TenantID, now)
	if err != nil {
		return false, err
	}
	for _, w := range windows {
		if w.SuppressAlarms && w.Covers(a.ResourceType, a.ResourceID) {
			return true, nil
		}
	}
	return false, nil
}

// Acknowledge moves an active alarm to acknowledged and runs the
// response-time SLA check.
func (s *Service) Acknowledge(ctx context.Context, tenantID, id, by string) (*model.Alarm, error) {
	a, err := s.alarms.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusActive {
		return nil, &model.InvalidStateError{Reason: "alarm is " + string(a.Status) + ", only active alarms can be acknowledged"}
	}
	now := s.nowFn()
	a.Status = model.StatusAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = by
	if err := s.alarms.Update(ctx, a); err != nil {
		return nil, err
	}
	if s.sla != nil {
		if err := s.sla.CheckAlarmImpact(ctx, a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Clear transitions the alarm to cleared. Clearing a root cause cascades to
// every non-cleared alarm in its correlation group.
func (s *Service) Clear(ctx context.Context, tenantID, id string) (*model.Alarm, error) {
	return s.close(ctx, tenantID, id, false)
}

// Resolve is Clear plus a resolved timestamp and the resolution-time SLA check.
func (s *Service) Resolve(ctx context.Context, tenantID, id string) (*model.Alarm, error) {
	return s.close(ctx, tenantID, id, true)
}

func (s *Service) close(ctx context.Context, tenantID, id string, resolve bool) (*model.Alarm, error) {
	a, err := s.alarms.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if a.Status == model.StatusCleared {
		return nil, &model.InvalidStateError{Reason: "alarm is already cleared"}
	}
	now := s.nowFn()
	a.Status = model.StatusCleared
	a.ClearedAt = &now
	if resolve {
		a.ResolvedAt = &now
	}
	if err := s.alarms.Update(ctx, a); err != nil {
		return nil, err
	}

	cascaded := 0
	if a.CorrelationID != "" && a.IsRootCause {
		cascaded, err = s.alarms.ClearGroup(ctx, tenantID, a.CorrelationID, now)
		if err != nil {
			return nil, err
		}
	}
	log.Info().Str("tenant", tenantID).Str("alarm", a.ID).Bool("resolved", resolve).Int("cascaded", cascaded).Msg("alarm cleared")

	if s.sla != nil {
		if err := s.sla.CheckAlarmImpact(ctx, a); err != nil {
			return nil, err
		}
		if resolve {
			if err := s.sla.CheckAlarmResolution(ctx, a); err != nil {
				return nil, err
			}
		}
	}
	s.publish(model.Event{Type: model.EventAlarmCleared, TenantID: tenantID, AlarmID: a.ID, CorrelationID: a.CorrelationID})
	s.invalidate(ctx, tenantID)
	return a, nil
}

// LinkTicket attaches a ticket id exactly once.
func (s *Service) LinkTicket(ctx context.Context, tenantID, id, ticketID string) (*model.Alarm, error) {
	if ticketID == "" {
		return nil, &model.ConfigurationError{Reason: "ticket id is empty"}
	}
	a, err := s.alarms.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if a.TicketID != "" {
		return nil, &model.InvalidStateError{Reason: "alarm already has ticket " + a.TicketID}
	}
	a.TicketID = ticketID
	if err := s.alarms.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (*model.Alarm, error) {
	return s.alarms.Get(ctx, tenantID, id)
}

func (s *Service) ListByStatus(ctx context.Context, tenantID string, status model.Status, limit int) ([]*model.Alarm, error) {
	return s.alarms.ListByStatus(ctx, tenantID, status, limit)
}

// Group returns all alarms sharing the given alarm's correlation id, the
// lookup behind explicit clear-group operations.
func (s *Service) Group(ctx context.Context, tenantID, id string) ([]*model.Alarm, error) {
	a, err := s.alarms.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if a.CorrelationID == "" {
		return []*model.Alarm{a}, nil
	}
	return s.alarms.ListByCorrelation(ctx, tenantID, a.CorrelationID)
}

// CreateMaintenanceWindow registers a window; compliance caches are dropped
// since planned downtime changes the series.
func (s *Service) CreateMaintenanceWindow(ctx context.Context, w *model.MaintenanceWindow) error {
	if w.TenantID == "" || w.EndTime.IsZero() || !w.EndTime.After(w.StartTime) {
		return &model.ConfigurationError{Reason: "maintenance window needs tenant_id and start_time < end_time"}
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = model.MaintenanceScheduled
	}
	now := s.nowFn()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	if err := s.maintenance.Insert(ctx, w); err != nil {
		return err
	}
	s.invalidate(ctx, w.TenantID)
	return nil
}

func (s *Service) publish(ev model.Event) {
	if s.dispatcher != nil {
		s.dispatcher.Publish(ev)
	}
}

func (s *Service) invalidate(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTenant(ctx, tenantID); err != nil {
		log.Warn().Err(err).Str("tenant", tenantID).Msg("failed to invalidate compliance cache")
	}
}
