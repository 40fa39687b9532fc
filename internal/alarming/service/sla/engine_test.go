package sla

import (
	"context"
	"testing"
	"time"

	"github.com/ispops/faultline/internal/alarming/model"
)

// memStore is the in-memory Store used across the engine tests. WithTx runs
// the callback against the same store; transactional isolation is exercised
// against postgres, not here.
type memStore struct {
	defs     map[string]*model.SLADefinition
	insts    map[string]*model.SLAInstance
	breaches []*model.SLABreach
}

func newMemStore() *memStore {
	return &memStore{
		defs:  map[string]*model.SLADefinition{},
		insts: map[string]*model.SLAInstance{},
	}
}

func (s *memStore) CreateDefinition(_ context.Context, d *model.SLADefinition) error {
	s.defs[d.ID] = d
	return nil
}

func (s *memStore) GetDefinition(_ context.Context, tenantID, id string) (*model.SLADefinition, error) {
	d, ok := s.defs[id]
	if !ok || d.TenantID != tenantID {
		return nil, &model.NotFoundError{Kind: "sla_definition", ID: id}
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) CreateInstance(_ context.Context, inst *model.SLAInstance) error {
	cp := *inst
	s.insts[inst.ID] = &cp
	return nil
}

func (s *memStore) GetInstance(_ context.Context, tenantID, id string) (*model.SLAInstance, error) {
	inst, ok := s.insts[id]
	if !ok || inst.TenantID != tenantID {
		return nil, &model.NotFoundError{Kind: "sla_instance", ID: id}
	}
	cp := *inst
	return &cp, nil
}

func (s *memStore) UpdateInstance(_ context.Context, inst *model.SLAInstance) error {
	if _, ok := s.insts[inst.ID]; !ok {
		return &model.NotFoundError{Kind: "sla_instance", ID: inst.ID}
	}
	cp := *inst
	s.insts[inst.ID] = &cp
	return nil
}

func (s *memStore) ListInstances(_ context.Context, tenantID, customerID string, enabledOnly bool) ([]*model.SLAInstance, error) {
	var out []*model.SLAInstance
	for _, inst := range s.insts {
		if inst.TenantID != tenantID {
			continue
		}
		if customerID != "" && inst.CustomerID != customerID {
			continue
		}
		if enabledOnly && !inst.Enabled {
			continue
		}
		cp := *inst
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) FindOpenBreach(_ context.Context, instanceID string, bt model.BreachType) (*model.SLABreach, error) {
	for _, b := range s.breaches {
		if b.InstanceID == instanceID && b.BreachType == bt && !b.Resolved {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) InsertBreach(_ context.Context, b *model.SLABreach) error {
	cp := *b
	s.breaches = append(s.breaches, &cp)
	return nil
}

func (s *memStore) ListOpenBreaches(_ context.Context, tenantID, customerID string) ([]*model.SLABreach, error) {
	var out []*model.SLABreach
	for _, b := range s.breaches {
		if b.TenantID != tenantID || b.Resolved {
			continue
		}
		if customerID != "" {
			inst, ok := s.insts[b.InstanceID]
			if !ok || inst.CustomerID != customerID {
				continue
			}
		}
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) WithTx(_ context.Context, fn func(Store) error) error { return fn(s) }

type memAlarms struct{ alarms []*model.Alarm }

func (m *memAlarms) ListOverlapping(_ context.Context, tenantID, customerID string, from, to time.Time) ([]*model.Alarm, error) {
	var out []*model.Alarm
	for _, a := range m.alarms {
		if a.TenantID != tenantID {
			continue
		}
		if customerID != "" && a.CustomerID != customerID {
			continue
		}
		end := a.EndedAt()
		if end.IsZero() {
			end = to
		}
		if a.FirstOccurrence.Before(to) && end.After(from) {
			out = append(out, a)
		}
	}
	return out, nil
}

type memWindows struct{ windows []*model.MaintenanceWindow }

func (m *memWindows) ListOverlapping(_ context.Context, tenantID string, from, to time.Time) ([]*model.MaintenanceWindow, error) {
	var out []*model.MaintenanceWindow
	for _, w := range m.windows {
		if w.TenantID != tenantID {
			continue
		}
		if w.StartTime.Before(to) && w.EndTime.After(from) {
			out = append(out, w)
		}
	}
	return out, nil
}

type memCache struct {
	entries map[string][]model.ComplianceDay
	hits    int
	sets    int
}

func newMemCache() *memCache { return &memCache{entries: map[string][]model.ComplianceDay{}} }

func (c *memCache) Get(_ context.Context, key string) ([]model.ComplianceDay, bool, error) {
	days, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return days, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, days []model.ComplianceDay, _ time.Duration) error {
	c.sets++
	c.entries[key] = days
	return nil
}

func (c *memCache) InvalidateTenant(_ context.Context, _ string) error {
	c.entries = map[string][]model.ComplianceDay{}
	return nil
}

// thirtyDayInstance seeds a definition/instance pair covering a 30-day
// measurement period (43200 minutes).
func thirtyDayInstance(t *testing.T, store *memStore, target float64, excludeMaintenance bool) *model.SLAInstance {
	t.Helper()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	def := &model.SLADefinition{
		ID:                    "def-1",
		TenantID:              "t1",
		Name:                  "gold",
		AvailabilityTarget:    target,
		ResponseTimeTarget:    30,
		ResolutionTimeTarget:  240,
		MeasurementPeriodDays: 30,
		ExcludeMaintenance:    excludeMaintenance,
	}
	inst := &model.SLAInstance{
		ID:                  "inst-1",
		TenantID:            "t1",
		DefinitionID:        def.ID,
		CustomerID:          "cust-1",
		StartDate:           start,
		EndDate:             start.AddDate(0, 0, 30),
		Enabled:             true,
		CurrentAvailability: 100,
		Status:              model.SLACompliant,
	}
	if err := store.CreateDefinition(context.Background(), def); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateInstance(context.Background(), inst); err != nil {
		t.Fatal(err)
	}
	return inst
}

func newTestEngine(store *memStore) *Engine {
	e := NewEngine(store, &memAlarms{}, &memWindows{}, newMemCache(), nil, Config{})
	e.nowFn = func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestRecordDowntimeUpdatesAvailability(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	e := newTestEngine(store)

	if err := e.RecordDowntime(context.Background(), "t1", "inst-1", 43.2, false); err != nil {
		t.Fatal(err)
	}
	inst := store.insts["inst-1"]
	if inst.CurrentAvailability != 99.9 {
		t.Fatalf("availability = %v, want 99.9", inst.CurrentAvailability)
	}
	if inst.TotalDowntime != 43.2 || inst.UnplannedDowntime != 43.2 || inst.PlannedDowntime != 0 {
		t.Fatalf("counters = %v/%v/%v", inst.TotalDowntime, inst.PlannedDowntime, inst.UnplannedDowntime)
	}
	if inst.Status != model.SLACompliant {
		t.Fatalf("status = %s, want compliant at exactly the target", inst.Status)
	}
	if len(store.breaches) != 0 {
		t.Fatalf("no breach expected at exactly the target, got %d", len(store.breaches))
	}
}

func TestRecordDowntimeZeroIsNoOp(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	e := newTestEngine(store)

	if err := e.RecordDowntime(context.Background(), "t1", "inst-1", 43.2, false); err != nil {
		t.Fatal(err)
	}
	before := store.insts["inst-1"].CurrentAvailability

	if err := e.RecordDowntime(context.Background(), "t1", "inst-1", 0, false); err != nil {
		t.Fatal(err)
	}
	inst := store.insts["inst-1"]
	if inst.CurrentAvailability != before {
		t.Fatalf("availability changed on zero downtime: %v -> %v", before, inst.CurrentAvailability)
	}
	if inst.TotalDowntime != 43.2 {
		t.Fatalf("total downtime = %v, want 43.2", inst.TotalDowntime)
	}
}

func TestRecordDowntimeNegativeRejected(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	e := newTestEngine(store)

	err := e.RecordDowntime(context.Background(), "t1", "inst-1", -1, false)
	if !model.IsInvalidState(err) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestRecordDowntimeUnknownInstance(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(store)

	err := e.RecordDowntime(context.Background(), "t1", "missing", 5, false)
	if !model.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestAvailabilityAtRiskWithinMargin(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	e := newTestEngine(store)

	// 216 minutes over 43200 puts availability at 99.5, 0.4 points short.
	if err := e.RecordDowntime(context.Background(), "t1", "inst-1", 216, false); err != nil {
		t.Fatal(err)
	}
	inst := store.insts["inst-1"]
	if inst.CurrentAvailability != 99.5 {
		t.Fatalf("availability = %v, want 99.5", inst.CurrentAvailability)
	}
	if inst.Status != model.SLAAtRisk {
		t.Fatalf("status = %s, want at_risk", inst.Status)
	}
	if len(store.breaches) != 0 {
		t.Fatalf("at_risk must not record a breach, got %d", len(store.breaches))
	}
}

func TestAvailabilityBreachHighSeverity(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	e := newTestEngine(store)

	// 432 minutes puts availability at 99.0, 0.9 points short of 99.9.
	if err := e.RecordDowntime(context.Background(), "t1", "inst-1", 432, false); err != nil {
		t.Fatal(err)
	}
	inst := store.insts["inst-1"]
	if inst.Status != model.SLABreached {
		t.Fatalf("status = %s, want breached", inst.Status)
	}
	if inst.BreachCount != 1 || inst.LastBreachAt == nil {
		t.Fatalf("breach bookkeeping: count=%d lastAt=%v", inst.BreachCount, inst.LastBreachAt)
	}
	if len(store.breaches) != 1 {
		t.Fatalf("breach records = %d, want 1", len(store.breaches))
	}
	b := store.breaches[0]
	if b.BreachType != model.BreachAvailability || b.Severity != model.BreachSevHigh {
		t.Fatalf("breach = %s/%s, want availability/high", b.BreachType, b.Severity)
	}
	if b.TargetValue != 99.9 || b.ActualValue != 99.0 {
		t.Fatalf("breach values = %v/%v", b.TargetValue, b.ActualValue)
	}
}

func TestAvailabilityBreachCriticalSeverity(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	e := newTestEngine(store)

	// 907.2 minutes puts availability at 97.9, a full 2 points short.
	if err := e.RecordDowntime(context.Background(), "t1", "inst-1", 907.2, false); err != nil {
		t.Fatal(err)
	}
	if len(store.breaches) != 1 {
		t.Fatalf("breach records = %d, want 1", len(store.breaches))
	}
	if store.breaches[0].Severity != model.BreachSevCritical {
		t.Fatalf("severity = %s, want critical", store.breaches[0].Severity)
	}
}

func TestAvailabilityBreachIdempotent(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	e := newTestEngine(store)

	if err := e.RecordDowntime(context.Background(), "t1", "inst-1", 432, false); err != nil {
		t.Fatal(err)
	}
	if err := e.RecordDowntime(context.Background(), "t1", "inst-1", 10, false); err != nil {
		t.Fatal(err)
	}
	if len(store.breaches) != 1 {
		t.Fatalf("ongoing breach must not be re-recorded, got %d records", len(store.breaches))
	}
	if store.insts["inst-1"].BreachCount != 1 {
		t.Fatalf("breach count = %d, want 1", store.insts["inst-1"].BreachCount)
	}
}

func TestAvailabilityEmptyPeriodIsFull(t *testing.T) {
	store := newMemStore()
	inst := thirtyDayInstance(t, store, 99.9, false)
	inst.EndDate = inst.StartDate
	store.insts[inst.ID] = inst
	e := newTestEngine(store)

	if err := e.RecordDowntime(context.Background(), "t1", "inst-1", 60, false); err != nil {
		t.Fatal(err)
	}
	if got := store.insts["inst-1"].CurrentAvailability; got != 100 {
		t.Fatalf("availability = %v, want 100 for an empty period", got)
	}
}

func TestPlannedDowntimeExcludedFromAvailability(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, true)
	e := newTestEngine(store)

	if err := e.RecordDowntime(context.Background(), "t1", "inst-1", 500, true); err != nil {
		t.Fatal(err)
	}
	inst := store.insts["inst-1"]
	if inst.CurrentAvailability != 100 {
		t.Fatalf("availability = %v, want 100 when maintenance is excluded", inst.CurrentAvailability)
	}
	if inst.Status != model.SLACompliant {
		t.Fatalf("status = %s, want compliant", inst.Status)
	}
	if inst.PlannedDowntime != 500 || inst.TotalDowntime != 500 {
		t.Fatalf("counters = total %v planned %v", inst.TotalDowntime, inst.PlannedDowntime)
	}
}

func TestCheckAlarmImpactResponseBreach(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	e := newTestEngine(store)

	first := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	acked := first.Add(90 * time.Minute) // target is 30
	a := &model.Alarm{
		ID:              "a1",
		TenantID:        "t1",
		CustomerID:      "cust-1",
		Severity:        model.SeverityMajor,
		Status:          model.StatusAcknowledged,
		FirstOccurrence: first,
		AcknowledgedAt:  &acked,
	}
	if err := e.CheckAlarmImpact(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if len(store.breaches) != 1 {
		t.Fatalf("breach records = %d, want 1", len(store.breaches))
	}
	b := store.breaches[0]
	if b.BreachType != model.BreachResponseTime {
		t.Fatalf("breach type = %s, want response_time", b.BreachType)
	}
	if b.Severity != model.BreachSevHigh {
		t.Fatalf("severity = %s, want high for a major alarm", b.Severity)
	}
	if b.TargetValue != 30 || b.ActualValue != 90 {
		t.Fatalf("values = %v/%v, want 30/90", b.TargetValue, b.ActualValue)
	}
	if b.DeviationPercent != 200 {
		t.Fatalf("deviation = %v, want 200", b.DeviationPercent)
	}
	if b.AlarmID != "a1" {
		t.Fatalf("breach alarm id = %q", b.AlarmID)
	}
}

func TestCheckAlarmImpactWithinResponseTarget(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	e := newTestEngine(store)

	first := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	acked := first.Add(10 * time.Minute)
	a := &model.Alarm{
		ID:              "a1",
		TenantID:        "t1",
		CustomerID:      "cust-1",
		Severity:        model.SeverityMajor,
		Status:          model.StatusAcknowledged,
		FirstOccurrence: first,
		AcknowledgedAt:  &acked,
	}
	if err := e.CheckAlarmImpact(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if len(store.breaches) != 0 {
		t.Fatalf("no breach expected within target, got %d", len(store.breaches))
	}
}

func TestCheckAlarmImpactSeverityOverride(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	def := store.defs["def-1"]
	def.ResponseBySeverity = map[model.Severity]float64{model.SeverityCritical: 5}
	e := newTestEngine(store)

	first := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	acked := first.Add(10 * time.Minute) // within the default 30, past the critical 5
	a := &model.Alarm{
		ID:              "a1",
		TenantID:        "t1",
		CustomerID:      "cust-1",
		Severity:        model.SeverityCritical,
		Status:          model.StatusAcknowledged,
		FirstOccurrence: first,
		AcknowledgedAt:  &acked,
	}
	if err := e.CheckAlarmImpact(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if len(store.breaches) != 1 {
		t.Fatalf("breach records = %d, want 1", len(store.breaches))
	}
	if store.breaches[0].TargetValue != 5 {
		t.Fatalf("target = %v, want the per-severity override", store.breaches[0].TargetValue)
	}
}

func TestCheckAlarmImpactRecordsDowntimeOnClear(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	e := newTestEngine(store)

	first := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	cleared := first.Add(120 * time.Minute)
	a := &model.Alarm{
		ID:              "a1",
		TenantID:        "t1",
		CustomerID:      "cust-1",
		Severity:        model.SeverityWarning,
		Status:          model.StatusCleared,
		FirstOccurrence: first,
		ClearedAt:       &cleared,
	}
	if err := e.CheckAlarmImpact(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	inst := store.insts["inst-1"]
	if inst.TotalDowntime != 120 || inst.UnplannedDowntime != 120 {
		t.Fatalf("downtime = %v/%v, want 120 unplanned", inst.TotalDowntime, inst.UnplannedDowntime)
	}
}

func TestCheckAlarmImpactNoCustomer(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	e := newTestEngine(store)

	a := &model.Alarm{ID: "a1", TenantID: "t1", Status: model.StatusActive}
	if err := e.CheckAlarmImpact(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if len(store.breaches) != 0 || store.insts["inst-1"].TotalDowntime != 0 {
		t.Fatal("alarm without customer must not touch SLA instances")
	}
}

func TestCheckAlarmResolutionBreachIdempotent(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	e := newTestEngine(store)

	first := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	resolved := first.Add(300 * time.Minute) // target is 240
	a := &model.Alarm{
		ID:              "a1",
		TenantID:        "t1",
		CustomerID:      "cust-1",
		Severity:        model.SeverityMinor,
		Status:          model.StatusCleared,
		FirstOccurrence: first,
		ResolvedAt:      &resolved,
	}
	if err := e.CheckAlarmResolution(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if err := e.CheckAlarmResolution(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, b := range store.breaches {
		if b.BreachType == model.BreachResolutionTime {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("resolution breaches = %d, want exactly 1", count)
	}
}

func TestCheckAlarmResolutionNoTarget(t *testing.T) {
	store := newMemStore()
	thirtyDayInstance(t, store, 99.9, false)
	store.defs["def-1"].ResolutionTimeTarget = 0
	e := newTestEngine(store)

	first := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	resolved := first.Add(10000 * time.Minute)
	a := &model.Alarm{
		ID: "a1", TenantID: "t1", CustomerID: "cust-1",
		Severity: model.SeverityMinor, FirstOccurrence: first, ResolvedAt: &resolved,
	}
	if err := e.CheckAlarmResolution(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if len(store.breaches) != 0 {
		t.Fatalf("zero target means no SLA, got %d breaches", len(store.breaches))
	}
}

func TestTargetPercentNormalization(t *testing.T) {
	d := &model.SLADefinition{AvailabilityTarget: 0.999}
	if got := d.TargetPercent(); got != 99.9 {
		t.Fatalf("fractional target = %v, want 99.9", got)
	}
	d.AvailabilityTarget = 99.95
	if got := d.TargetPercent(); got != 99.95 {
		t.Fatalf("percent target = %v, want 99.95", got)
	}
}
