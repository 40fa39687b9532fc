package rules

import (
	"context"
	"encoding/json"
	"fmt"

	adb "github.com/ispops/faultline/internal/alarming/database"
	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/jackc/pgx/v5"
)

// PgStore is the PostgreSQL-backed Store. Predicates are stored as one JSONB
// envelope so the schema does not change per rule type.
type PgStore struct {
	DB *adb.Database
}

func NewPgStore(db *adb.Database) *PgStore { return &PgStore{DB: db} }

type predicateEnvelope struct {
	Suppression *model.SuppressionPredicate `json:"suppression,omitempty"`
	Correlation *model.CorrelationPredicate `json:"correlation,omitempty"`
}

func marshalPredicate(r *model.AlarmRule) (string, error) {
	b, err := json.Marshal(predicateEnvelope{Suppression: r.Suppression, Correlation: r.Correlation})
	if err != nil {
		return "", fmt.Errorf("marshal predicate: %w", err)
	}
	return string(b), nil
}

func (s *PgStore) CreateRule(ctx context.Context, r *model.AlarmRule) error {
	pred, err := marshalPredicate(r)
	if err != nil {
		return err
	}
	const q = `
	INSERT INTO alarm_rules(id, tenant_id, name, rule_type, enabled, priority, predicate, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)
	`
	_, err = s.DB.Exec(ctx, q, r.ID, r.TenantID, r.Name, string(r.RuleType), r.Enabled, r.Priority, pred, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (s *PgStore) GetRule(ctx context.Context, tenantID, id string) (*model.AlarmRule, error) {
	const q = `
	SELECT id, tenant_id, name, rule_type, enabled, priority, predicate, created_at, updated_at
	FROM alarm_rules WHERE tenant_id = $1 AND id = $2
	`
	r, err := scanRule(s.DB.QueryRow(ctx, q, tenantID, id))
	if err == pgx.ErrNoRows {
		return nil, &model.NotFoundError{Kind: "rule", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

func (s *PgStore) UpdateRule(ctx context.Context, r *model.AlarmRule) error {
	pred, err := marshalPredicate(r)
	if err != nil {
		return err
	}
	const q = `
	UPDATE alarm_rules SET name=$3, rule_type=$4, enabled=$5, priority=$6, predicate=$7::jsonb, updated_at=now()
	WHERE tenant_id=$1 AND id=$2
	`
	tag, err := s.DB.Exec(ctx, q, r.TenantID, r.ID, r.Name, string(r.RuleType), r.Enabled, r.Priority, pred)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "rule", ID: r.ID}
	}
	return nil
}

func (s *PgStore) DeleteRule(ctx context.Context, tenantID, id string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM alarm_rules WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "rule", ID: id}
	}
	return nil
}

func (s *PgStore) SetEnabled(ctx context.Context, tenantID, id string, enabled bool) error {
	tag, err := s.DB.Exec(ctx, `UPDATE alarm_rules SET enabled=$3, updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id, enabled)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "rule", ID: id}
	}
	return nil
}

func (s *PgStore) ListRules(ctx context.Context, tenantID string, ruleType model.RuleType, enabledOnly bool) ([]*model.AlarmRule, error) {
	q := `
	SELECT id, tenant_id, name, rule_type, enabled, priority, predicate, created_at, updated_at
	FROM alarm_rules WHERE tenant_id = $1
	`
	args := []any{tenantID}
	if ruleType != "" {
		q += ` AND rule_type = $2`
		args = append(args, string(ruleType))
	}
	if enabledOnly {
		q += ` AND enabled`
	}
	q += ` ORDER BY priority ASC, created_at ASC`

	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []*model.AlarmRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRule(row pgx.Row) (*model.AlarmRule, error) {
	var r model.AlarmRule
	var ruleType, predRaw string
	if err := row.Scan(&r.ID, &r.TenantID, &r.Name, &ruleType, &r.Enabled, &r.Priority, &predRaw, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.RuleType = model.RuleType(ruleType)
	var env predicateEnvelope
	if err := json.Unmarshal([]byte(predRaw), &env); err != nil {
		return nil, fmt.Errorf("decode predicate: %w", err)
	}
	r.Suppression = env.Suppression
	r.Correlation = env.Correlation
	return &r, nil
}
