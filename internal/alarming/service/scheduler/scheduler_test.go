package scheduler

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/ispops/faultline/internal/alarming/model"
)

type fakeCorrelator struct {
	processed map[string]int
	failOnce  map[string]bool
}

func (f *fakeCorrelator) RecorrelateAll(_ context.Context, tenantID string) (int, error) {
	if f.failOnce[tenantID] {
		delete(f.failOnce, tenantID)
		return 0, errors.New("store unavailable")
	}
	if f.processed == nil {
		f.processed = map[string]int{}
	}
	f.processed[tenantID]++
	return 3, nil
}

type fakeMaintenance struct {
	windows []*model.MaintenanceWindow
	updates []string
}

func (f *fakeMaintenance) ListPendingTransitions(_ context.Context, now time.Time) ([]*model.MaintenanceWindow, error) {
	var out []*model.MaintenanceWindow
	for _, w := range f.windows {
		if w.Status == model.MaintenanceCompleted {
			continue
		}
		if !w.StartTime.After(now) || !w.EndTime.After(now) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeMaintenance) UpdateStatus(_ context.Context, tenantID, id string, status model.MaintenanceStatus) error {
	for _, w := range f.windows {
		if w.TenantID == tenantID && w.ID == id {
			w.Status = status
			f.updates = append(f.updates, id+":"+string(status))
			return nil
		}
	}
	return errors.New("window not found")
}

type fakeInvalidator struct {
	tenants []string
}

func (f *fakeInvalidator) InvalidateTenant(_ context.Context, tenantID string) error {
	f.tenants = append(f.tenants, tenantID)
	return nil
}

func TestRecorrelateDirtyDrainsQueue(t *testing.T) {
	corr := &fakeCorrelator{}
	s := New(Deps{Correlator: corr, Interval: time.Minute})

	s.MarkDirty("t1")
	s.MarkDirty("t2")
	s.MarkDirty("t1")

	s.runOnce(context.Background())

	if corr.processed["t1"] != 1 || corr.processed["t2"] != 1 {
		t.Fatalf("expected one recorrelation per tenant, got %v", corr.processed)
	}
	if got := s.takeDirty(); len(got) != 0 {
		t.Fatalf("queue should be empty after run, got %v", got)
	}
}

func TestRecorrelateFailureRequeuesTenant(t *testing.T) {
	corr := &fakeCorrelator{failOnce: map[string]bool{"t1": true}}
	s := New(Deps{Correlator: corr, Interval: time.Minute})

	s.MarkDirty("t1")
	s.runOnce(context.Background())
	if corr.processed["t1"] != 0 {
		t.Fatal("first run should have failed")
	}

	// Retry succeeds on the next tick.
	s.runOnce(context.Background())
	if corr.processed["t1"] != 1 {
		t.Fatalf("expected retry after failure, got %v", corr.processed)
	}
}

func TestMaintenanceTransitions(t *testing.T) {
	now := time.Now().UTC()
	started := &model.MaintenanceWindow{
		ID:        "w-started",
		TenantID:  "t1",
		Status:    model.MaintenanceScheduled,
		StartTime: now.Add(-10 * time.Minute),
		EndTime:   now.Add(50 * time.Minute),
	}
	ended := &model.MaintenanceWindow{
		ID:        "w-ended",
		TenantID:  "t1",
		Status:    model.MaintenanceInProgress,
		StartTime: now.Add(-2 * time.Hour),
		EndTime:   now.Add(-time.Hour),
	}
	future := &model.MaintenanceWindow{
		ID:        "w-future",
		TenantID:  "t1",
		Status:    model.MaintenanceScheduled,
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(2 * time.Hour),
	}
	maint := &fakeMaintenance{windows: []*model.MaintenanceWindow{started, ended, future}}
	cache := &fakeInvalidator{}
	s := New(Deps{Maintenance: maint, Cache: cache, Interval: time.Minute})

	s.runOnce(context.Background())

	if started.Status != model.MaintenanceInProgress {
		t.Fatalf("started window: got status %q", started.Status)
	}
	if ended.Status != model.MaintenanceCompleted {
		t.Fatalf("ended window: got status %q", ended.Status)
	}
	if future.Status != model.MaintenanceScheduled {
		t.Fatalf("future window should be untouched, got %q", future.Status)
	}
	sort.Strings(maint.updates)
	if len(maint.updates) != 2 {
		t.Fatalf("expected 2 status updates, got %v", maint.updates)
	}
	if len(cache.tenants) != 2 {
		t.Fatalf("expected cache invalidation per transition, got %v", cache.tenants)
	}
}

func TestDefaultInterval(t *testing.T) {
	s := New(Deps{})
	if s.deps.Interval != 30*time.Second {
		t.Fatalf("default interval: got %v", s.deps.Interval)
	}
}
