package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/rs/zerolog/log"
)

// Recorrelator re-runs correlation for one tenant's open alarms.
type Recorrelator interface {
	RecorrelateAll(ctx context.Context, tenantID string) (int, error)
}

// MaintenanceTransitioner exposes windows whose status lags the wall clock.
type MaintenanceTransitioner interface {
	ListPendingTransitions(ctx context.Context, now time.Time) ([]*model.MaintenanceWindow, error)
	UpdateStatus(ctx context.Context, tenantID, id string, status model.MaintenanceStatus) error
}

// CacheInvalidator drops cached compliance results for a tenant.
type CacheInvalidator interface {
	InvalidateTenant(ctx context.Context, tenantID string) error
}

type Deps struct {
	Correlator  Recorrelator
	Maintenance MaintenanceTransitioner
	Cache       CacheInvalidator
	Interval    time.Duration
}

// Scheduler drives the periodic housekeeping the engines expect an external
// scheduler to invoke: recorrelation after rule changes and maintenance
// window status transitions.
type Scheduler struct {
	deps Deps

	mu    sync.Mutex
	dirty map[string]struct{}
}

func New(deps Deps) *Scheduler {
	if deps.Interval <= 0 {
		deps.Interval = 30 * time.Second
	}
	return &Scheduler{deps: deps, dirty: map[string]struct{}{}}
}

// MarkDirty queues a tenant for recorrelation on the next tick. Wired as the
// rule manager's change callback.
func (s *Scheduler) MarkDirty(tenantID string) {
	s.mu.Lock()
	s.dirty[tenantID] = struct{}{}
	s.mu.Unlock()
}

func (s *Scheduler) takeDirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.dirty))
	for t := range s.dirty {
		out = append(out, t)
	}
	s.dirty = map[string]struct{}{}
	return out
}

// Start runs the ticker loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	t := time.NewTicker(s.deps.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.transitionMaintenance(ctx)
	s.recorrelateDirty(ctx)
}

func (s *Scheduler) transitionMaintenance(ctx context.Context) {
	if s.deps.Maintenance == nil {
		return
	}
	now := time.Now().UTC()
	windows, err := s.deps.Maintenance.ListPendingTransitions(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("maintenance transition scan failed")
		return
	}
	for _, w := range windows {
		next := w.Status
		switch {
		case !w.EndTime.After(now):
			next = model.MaintenanceCompleted
		case w.Status == model.MaintenanceScheduled && !w.StartTime.After(now):
			next = model.MaintenanceInProgress
		}
		if next == w.Status {
			continue
		}
		if err := s.deps.Maintenance.UpdateStatus(ctx, w.TenantID, w.ID, next); err != nil {
			log.Error().Err(err).Str("tenant", w.TenantID).Str("window", w.ID).Msg("maintenance transition failed")
			continue
		}
		log.Info().Str("tenant", w.TenantID).Str("window", w.ID).Str("status", string(next)).Msg("maintenance window transitioned")
		if s.deps.Cache != nil {
			if err := s.deps.Cache.InvalidateTenant(ctx, w.TenantID); err != nil {
				log.Warn().Err(err).Str("tenant", w.TenantID).Msg("cache invalidation failed after maintenance transition")
			}
		}
	}
}

func (s *Scheduler) recorrelateDirty(ctx context.Context) {
	if s.deps.Correlator == nil {
		return
	}
	for _, tenant := range s.takeDirty() {
		n, err := s.deps.Correlator.RecorrelateAll(ctx, tenant)
		if err != nil {
			log.Error().Err(err).Str("tenant", tenant).Msg("recorrelation failed")
			// Keep the tenant queued so the next tick retries.
			s.MarkDirty(tenant)
			continue
		}
		log.Info().Str("tenant", tenant).Int("processed", n).Msg("recorrelation after rule change")
	}
}
