package sla

import (
	"context"
	"encoding/json"
	"fmt"

	adb "github.com/ispops/faultline/internal/alarming/database"
	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/jackc/pgx/v5"
)

// PgStore is the PostgreSQL-backed Store. It runs against the pool directly
// or, inside WithTx, against one transaction via the shared Querier.
type PgStore struct {
	db *adb.Database
	q  adb.Querier
}

func NewPgStore(db *adb.Database) *PgStore { return &PgStore{db: db, q: db} }

func (s *PgStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		// Already transactional; nested calls reuse the same tx.
		return fn(s)
	}
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&PgStore{q: tx})
	})
}

func (s *PgStore) CreateDefinition(ctx context.Context, d *model.SLADefinition) error {
	respBySev, _ := json.Marshal(d.ResponseBySeverity)
	resBySev, _ := json.Marshal(d.ResolutionBySeverity)
	const q = `
	INSERT INTO sla_definitions(id, tenant_id, name, availability_target, response_time_target, resolution_time_target,
		response_by_severity, resolution_by_severity, measurement_period_days, exclude_maintenance)
	VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8::jsonb,$9,$10)
	`
	_, err := s.q.Exec(ctx, q, d.ID, d.TenantID, d.Name, d.AvailabilityTarget, d.ResponseTimeTarget, d.ResolutionTimeTarget,
		string(respBySev), string(resBySev), d.MeasurementPeriodDays, d.ExcludeMaintenance)
	if err != nil {
		return fmt.Errorf("create sla definition: %w", err)
	}
	return nil
}

func (s *PgStore) GetDefinition(ctx context.Context, tenantID, id string) (*model.SLADefinition, error) {
	const q = `
	SELECT id, tenant_id, name, availability_target, response_time_target, resolution_time_target,
		response_by_severity, resolution_by_severity, measurement_period_days, exclude_maintenance
	FROM sla_definitions WHERE tenant_id=$1 AND id=$2
	`
	var d model.SLADefinition
	var respRaw, resRaw string
	err := s.q.QueryRow(ctx, q, tenantID, id).Scan(&d.ID, &d.TenantID, &d.Name, &d.AvailabilityTarget,
		&d.ResponseTimeTarget, &d.ResolutionTimeTarget, &respRaw, &resRaw, &d.MeasurementPeriodDays, &d.ExcludeMaintenance)
	if err == pgx.ErrNoRows {
		return nil, &model.NotFoundError{Kind: "sla definition", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get sla definition: %w", err)
	}
	_ = json.Unmarshal([]byte(respRaw), &d.ResponseBySeverity)
	_ = json.Unmarshal([]byte(resRaw), &d.ResolutionBySeverity)
	return &d, nil
}

const instanceColumns = `
	id, tenant_id, definition_id, customer_id, service_id, start_date, end_date, enabled,
	total_downtime, planned_downtime, unplanned_downtime, current_availability, status, breach_count, last_breach_at`

func (s *PgStore) CreateInstance(ctx context.Context, inst *model.SLAInstance) error {
	const q = `
	INSERT INTO sla_instances(` + instanceColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`
	_, err := s.q.Exec(ctx, q, inst.ID, inst.TenantID, inst.DefinitionID, inst.CustomerID, inst.ServiceID,
		inst.StartDate, inst.EndDate, inst.Enabled, inst.TotalDowntime, inst.PlannedDowntime, inst.UnplannedDowntime,
		inst.CurrentAvailability, string(inst.Status), inst.BreachCount, inst.LastBreachAt)
	if err != nil {
		return fmt.Errorf("create sla instance: %w", err)
	}
	return nil
}

func (s *PgStore) GetInstance(ctx context.Context, tenantID, id string) (*model.SLAInstance, error) {
	const q = `SELECT ` + instanceColumns + ` FROM sla_instances WHERE tenant_id=$1 AND id=$2 FOR UPDATE`
	inst, err := scanInstance(s.q.QueryRow(ctx, q, tenantID, id))
	if err == pgx.ErrNoRows {
		return nil, &model.NotFoundError{Kind: "sla instance", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get sla instance: %w", err)
	}
	return inst, nil
}

func (s *PgStore) UpdateInstance(ctx context.Context, inst *model.SLAInstance) error {
	const q = `
	UPDATE sla_instances SET
		total_downtime=$3, planned_downtime=$4, unplanned_downtime=$5,
		current_availability=$6, status=$7, breach_count=$8, last_breach_at=$9, enabled=$10, end_date=$11
	WHERE tenant_id=$1 AND id=$2
	`
	tag, err := s.q.Exec(ctx, q, inst.TenantID, inst.ID, inst.TotalDowntime, inst.PlannedDowntime, inst.UnplannedDowntime,
		inst.CurrentAvailability, string(inst.Status), inst.BreachCount, inst.LastBreachAt, inst.Enabled, inst.EndDate)
	if err != nil {
		return fmt.Errorf("update sla instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "sla instance", ID: inst.ID}
	}
	return nil
}

func (s *PgStore) ListInstances(ctx context.Context, tenantID, customerID string, enabledOnly bool) ([]*model.SLAInstance, error) {
	q := `SELECT ` + instanceColumns + ` FROM sla_instances WHERE tenant_id=$1`
	args := []any{tenantID}
	if customerID != "" {
		q += ` AND customer_id=$2`
		args = append(args, customerID)
	}
	if enabledOnly {
		q += ` AND enabled`
	}
	q += ` ORDER BY start_date ASC`
	rows, err := s.q.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sla instances: %w", err)
	}
	defer rows.Close()
	var out []*model.SLAInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sla instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

const breachColumns = `
	id, tenant_id, instance_id, breach_type, severity, target_value, actual_value, deviation_percent,
	alarm_id, resolved, created_at, resolved_at`

func (s *PgStore) FindOpenBreach(ctx context.Context, instanceID string, bt model.BreachType) (*model.SLABreach, error) {
	const q = `SELECT ` + breachColumns + ` FROM sla_breaches
	WHERE instance_id=$1 AND breach_type=$2 AND NOT resolved LIMIT 1`
	b, err := scanBreach(s.q.QueryRow(ctx, q, instanceID, string(bt)))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open breach: %w", err)
	}
	return b, nil
}

func (s *PgStore) InsertBreach(ctx context.Context, b *model.SLABreach) error {
	const q = `
	INSERT INTO sla_breaches(` + breachColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`
	_, err := s.q.Exec(ctx, q, b.ID, b.TenantID, b.InstanceID, string(b.BreachType), string(b.Severity),
		b.TargetValue, b.ActualValue, b.DeviationPercent, b.AlarmID, b.Resolved, b.CreatedAt, b.ResolvedAt)
	if err != nil {
		return fmt.Errorf("insert breach: %w", err)
	}
	return nil
}

func (s *PgStore) ListOpenBreaches(ctx context.Context, tenantID, customerID string) ([]*model.SLABreach, error) {
	q := `SELECT
	b.id, b.tenant_id, b.instance_id, b.breach_type, b.severity, b.target_value, b.actual_value, b.deviation_percent,
	b.alarm_id, b.resolved, b.created_at, b.resolved_at
	FROM sla_breaches b`
	args := []any{tenantID}
	if customerID != "" {
		q += ` JOIN sla_instances i ON i.id = b.instance_id AND i.customer_id = $2`
		args = append(args, customerID)
	}
	q += ` WHERE b.tenant_id=$1 AND NOT b.resolved ORDER BY b.created_at ASC`
	rows, err := s.q.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list open breaches: %w", err)
	}
	defer rows.Close()
	var out []*model.SLABreach
	for rows.Next() {
		b, err := scanBreach(rows)
		if err != nil {
			return nil, fmt.Errorf("scan breach: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanInstance(row pgx.Row) (*model.SLAInstance, error) {
	var inst model.SLAInstance
	var status string
	err := row.Scan(&inst.ID, &inst.TenantID, &inst.DefinitionID, &inst.CustomerID, &inst.ServiceID,
		&inst.StartDate, &inst.EndDate, &inst.Enabled, &inst.TotalDowntime, &inst.PlannedDowntime,
		&inst.UnplannedDowntime, &inst.CurrentAvailability, &status, &inst.BreachCount, &inst.LastBreachAt)
	if err != nil {
		return nil, err
	}
	inst.Status = model.SLAInstanceStatus(status)
	return &inst, nil
}

func scanBreach(row pgx.Row) (*model.SLABreach, error) {
	var b model.SLABreach
	var bt, sev string
	err := row.Scan(&b.ID, &b.TenantID, &b.InstanceID, &bt, &sev, &b.TargetValue, &b.ActualValue,
		&b.DeviationPercent, &b.AlarmID, &b.Resolved, &b.CreatedAt, &b.ResolvedAt)
	if err != nil {
		return nil, err
	}
	b.BreachType = model.BreachType(bt)
	b.Severity = model.BreachSeverity(sev)
	return &b, nil
}
