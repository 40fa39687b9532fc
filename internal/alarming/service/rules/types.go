package rules

import (
	"context"

	"github.com/ispops/faultline/internal/alarming/model"
)

// Store abstracts rule persistence. ListRules must return rules ordered by
// ascending priority, then creation time, so evaluation order is stable.
type Store interface {
	CreateRule(ctx context.Context, r *model.AlarmRule) error
	GetRule(ctx context.Context, tenantID, id string) (*model.AlarmRule, error)
	UpdateRule(ctx context.Context, r *model.AlarmRule) error
	DeleteRule(ctx context.Context, tenantID, id string) error
	SetEnabled(ctx context.Context, tenantID, id string, enabled bool) error

	// ListRules returns the tenant's rules, optionally filtered by type.
	// enabledOnly narrows to rules the engines should evaluate.
	ListRules(ctx context.Context, tenantID string, ruleType model.RuleType, enabledOnly bool) ([]*model.AlarmRule, error)
}
