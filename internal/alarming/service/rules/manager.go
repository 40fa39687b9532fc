package rules

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/rs/zerolog/log"
)

// Manager validates rules at creation time and notifies listeners when the
// rule set changes, so the scheduler can recorrelate open alarms against the
// new rules.
type Manager struct {
	store    Store
	onChange func(tenantID string)
}

func NewManager(store Store, onChange func(tenantID string)) *Manager {
	if onChange == nil {
		onChange = func(string) {}
	}
	return &Manager{store: store, onChange: onChange}
}

func (m *Manager) CreateRule(ctx context.Context, r *model.AlarmRule) error {
	if r == nil || r.TenantID == "" || r.Name == "" {
		return &model.ConfigurationError{Reason: "rule needs tenant_id and name"}
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if err := m.store.CreateRule(ctx, r); err != nil {
		return err
	}
	log.Info().Str("tenant", r.TenantID).Str("rule", r.Name).Str("type", string(r.RuleType)).Int("priority", r.Priority).Msg("alarm rule created")
	m.onChange(r.TenantID)
	return nil
}

func (m *Manager) UpdateRule(ctx context.Context, r *model.AlarmRule) error {
	if r == nil || r.ID == "" {
		return &model.ConfigurationError{Reason: "rule update needs an id"}
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if err := m.store.UpdateRule(ctx, r); err != nil {
		return err
	}
	m.onChange(r.TenantID)
	return nil
}

func (m *Manager) DeleteRule(ctx context.Context, tenantID, id string) error {
	if err := m.store.DeleteRule(ctx, tenantID, id); err != nil {
		return err
	}
	m.onChange(tenantID)
	return nil
}

func (m *Manager) EnableRule(ctx context.Context, tenantID, id string) error {
	if err := m.store.SetEnabled(ctx, tenantID, id, true); err != nil {
		return err
	}
	m.onChange(tenantID)
	return nil
}

func (m *Manager) DisableRule(ctx context.Context, tenantID, id string) error {
	if err := m.store.SetEnabled(ctx, tenantID, id, false); err != nil {
		return err
	}
	m.onChange(tenantID)
	return nil
}

func (m *Manager) GetRule(ctx context.Context, tenantID, id string) (*model.AlarmRule, error) {
	return m.store.GetRule(ctx, tenantID, id)
}

func (m *Manager) ListRules(ctx context.Context, tenantID string) ([]*model.AlarmRule, error) {
	return m.store.ListRules(ctx, tenantID, "", false)
}
