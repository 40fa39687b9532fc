package alarmsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	adb "github.com/ispops/faultline/internal/alarming/database"
	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/jackc/pgx/v5"
)

const alarmColumns = `
	id, tenant_id, alarm_id, title, description, severity, source, alarm_type, status,
	first_occurrence, last_occurrence, occurrence_count,
	acknowledged_at, acknowledged_by, cleared_at, resolved_at,
	resource_type, resource_id, resource_name, customer_id, customer_name, subscriber_count,
	correlation_id, parent_alarm_id, is_root_cause, ticket_id, labels, metadata,
	created_at, updated_at`

// PgAlarmStore is the PostgreSQL-backed AlarmStore.
type PgAlarmStore struct {
	DB *adb.Database
}

func NewPgAlarmStore(db *adb.Database) *PgAlarmStore { return &PgAlarmStore{DB: db} }

func (s *PgAlarmStore) Insert(ctx context.Context, a *model.Alarm) error {
	labels, metadata, err := marshalMaps(a)
	if err != nil {
		return err
	}
	const q = `
	INSERT INTO alarms(` + alarmColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27::jsonb,$28::jsonb,$29,$30)
	`
	_, err = s.DB.Exec(ctx, q,
		a.ID, a.TenantID, a.AlarmID, a.Title, a.Description, string(a.Severity), string(a.Source), a.AlarmType, string(a.Status),
		a.FirstOccurrence, a.LastOccurrence, a.OccurrenceCount,
		a.AcknowledgedAt, a.AcknowledgedBy, a.ClearedAt, a.ResolvedAt,
		a.ResourceType, a.ResourceID, a.ResourceName, a.CustomerID, a.CustomerName, a.SubscriberCount,
		a.CorrelationID, a.ParentAlarmID, a.IsRootCause, a.TicketID, labels, metadata,
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert alarm: %w", err)
	}
	return nil
}

func (s *PgAlarmStore) Update(ctx context.Context, a *model.Alarm) error {
	labels, metadata, err := marshalMaps(a)
	if err != nil {
		return err
	}
	const q = `
	UPDATE alarms SET
		title=$3, description=$4, severity=$5, source=$6, alarm_type=$7, status=$8,
		first_occurrence=$9, last_occurrence=$10, occurrence_count=$11,
		acknowledged_at=$12, acknowledged_by=$13, cleared_at=$14, resolved_at=$15,
		resource_type=$16, resource_id=$17, resource_name=$18, customer_id=$19, customer_name=$20, subscriber_count=$21,
		correlation_id=$22, parent_alarm_id=$23, is_root_cause=$24, ticket_id=$25,
		labels=$26::jsonb, metadata=$27::jsonb, updated_at=now()
	WHERE tenant_id=$1 AND id=$2
	`
	tag, err := s.DB.Exec(ctx, q,
		a.TenantID, a.ID, a.Title, a.Description, string(a.Severity), string(a.Source), a.AlarmType, string(a.Status),
		a.FirstOccurrence, a.LastOccurrence, a.OccurrenceCount,
		a.AcknowledgedAt, a.AcknowledgedBy, a.ClearedAt, a.ResolvedAt,
		a.ResourceType, a.ResourceID, a.ResourceName, a.CustomerID, a.CustomerName, a.SubscriberCount,
		a.CorrelationID, a.ParentAlarmID, a.IsRootCause, a.TicketID, labels, metadata)
	if err != nil {
		return fmt.Errorf("update alarm: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "alarm", ID: a.ID}
	}
	return nil
}

func (s *PgAlarmStore) Get(ctx context.Context, tenantID, id string) (*model.Alarm, error) {
	const q = `SELECT ` + alarmColumns + ` FROM alarms WHERE tenant_id=$1 AND id=$2`
	a, err := scanAlarm(s.DB.QueryRow(ctx, q, tenantID, id))
	if err == pgx.ErrNoRows {
		return nil, &model.NotFoundError{Kind: "alarm", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get alarm: %w", err)
	}
	return a, nil
}

func (s *PgAlarmStore) FindOpenByExternal(ctx context.Context, tenantID, alarmID, resourceID string) (*model.Alarm, error) {
	const q = `SELECT ` + alarmColumns + ` FROM alarms
	WHERE tenant_id=$1 AND alarm_id=$2 AND resource_id=$3 AND status <> 'cleared'
	LIMIT 1`
	return s.findOne(ctx, q, tenantID, alarmID, resourceID)
}

func (s *PgAlarmStore) FindDuplicate(ctx context.Context, tenantID, alarmID, alarmType, resourceID, excludeID string) (*model.Alarm, error) {
	const q = `SELECT ` + alarmColumns + ` FROM alarms
	WHERE tenant_id=$1 AND alarm_id=$2 AND alarm_type=$3 AND resource_id=$4 AND id <> $5 AND status <> 'cleared'
	ORDER BY first_occurrence ASC LIMIT 1`
	return s.findOne(ctx, q, tenantID, alarmID, alarmType, resourceID, excludeID)
}

func (s *PgAlarmStore) FindRecentSimilar(ctx context.Context, tenantID, alarmType, resourceID, excludeID string, since time.Time) (*model.Alarm, error) {
	const q = `SELECT ` + alarmColumns + ` FROM alarms
	WHERE tenant_id=$1 AND alarm_type=$2 AND resource_id=$3 AND id <> $4 AND status <> 'cleared' AND first_occurrence >= $5
	ORDER BY first_occurrence DESC LIMIT 1`
	return s.findOne(ctx, q, tenantID, alarmType, resourceID, excludeID, since)
}

func (s *PgAlarmStore) findOne(ctx context.Context, q string, args ...any) (*model.Alarm, error) {
	a, err := scanAlarm(s.DB.QueryRow(ctx, q, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find alarm: %w", err)
	}
	return a, nil
}

func (s *PgAlarmStore) ListOpen(ctx context.Context, tenantID string) ([]*model.Alarm, error) {
	const q = `SELECT ` + alarmColumns + ` FROM alarms
	WHERE tenant_id=$1 AND status <> 'cleared' ORDER BY created_at ASC`
	return s.list(ctx, q, tenantID)
}

func (s *PgAlarmStore) ListOpenSince(ctx context.Context, tenantID string, since time.Time) ([]*model.Alarm, error) {
	const q = `SELECT ` + alarmColumns + ` FROM alarms
	WHERE tenant_id=$1 AND status <> 'cleared' AND first_occurrence >= $2 ORDER BY first_occurrence ASC`
	return s.list(ctx, q, tenantID, since)
}

func (s *PgAlarmStore) ListByStatus(ctx context.Context, tenantID string, status model.Status, limit int) ([]*model.Alarm, error) {
	if limit <= 0 {
		limit = 200
	}
	const q = `SELECT ` + alarmColumns + ` FROM alarms
	WHERE tenant_id=$1 AND status=$2 ORDER BY last_occurrence DESC LIMIT $3`
	return s.list(ctx, q, tenantID, string(status), limit)
}

func (s *PgAlarmStore) ListByCorrelation(ctx context.Context, tenantID, correlationID string) ([]*model.Alarm, error) {
	const q = `SELECT ` + alarmColumns + ` FROM alarms
	WHERE tenant_id=$1 AND correlation_id=$2 ORDER BY first_occurrence ASC`
	return s.list(ctx, q, tenantID, correlationID)
}

func (s *PgAlarmStore) ClearGroup(ctx context.Context, tenantID, correlationID string, clearedAt time.Time) (int, error) {
	const q = `UPDATE alarms SET status='cleared', cleared_at=$3, updated_at=now()
	WHERE tenant_id=$1 AND correlation_id=$2 AND status <> 'cleared'`
	tag, err := s.DB.Exec(ctx, q, tenantID, correlationID, clearedAt)
	if err != nil {
		return 0, fmt.Errorf("clear group: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgAlarmStore) ListOverlapping(ctx context.Context, tenantID, customerID string, from, to time.Time) ([]*model.Alarm, error) {
	q := `SELECT ` + alarmColumns + ` FROM alarms
	WHERE tenant_id=$1 AND first_occurrence < $2
	  AND (COALESCE(cleared_at, resolved_at, now()) > $3)`
	args := []any{tenantID, to, from}
	if customerID != "" {
		q += ` AND customer_id = $4`
		args = append(args, customerID)
	}
	q += ` ORDER BY first_occurrence ASC`
	return s.list(ctx, q, args...)
}

func (s *PgAlarmStore) list(ctx context.Context, q string, args ...any) ([]*model.Alarm, error) {
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	defer rows.Close()
	var out []*model.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func marshalMaps(a *model.Alarm) (string, string, error) {
	labels, err := json.Marshal(orEmpty(a.Labels))
	if err != nil {
		return "", "", fmt.Errorf("marshal labels: %w", err)
	}
	metadata, err := json.Marshal(orEmpty(a.Metadata))
	if err != nil {
		return "", "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(labels), string(metadata), nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func scanAlarm(row pgx.Row) (*model.Alarm, error) {
	var a model.Alarm
	var severity, source, status string
	var labelsRaw, metadataRaw string
	err := row.Scan(
		&a.ID, &a.TenantID, &a.AlarmID, &a.Title, &a.Description, &severity, &source, &a.AlarmType, &status,
		&a.FirstOccurrence, &a.LastOccurrence, &a.OccurrenceCount,
		&a.AcknowledgedAt, &a.AcknowledgedBy, &a.ClearedAt, &a.ResolvedAt,
		&a.ResourceType, &a.ResourceID, &a.ResourceName, &a.CustomerID, &a.CustomerName, &a.SubscriberCount,
		&a.CorrelationID, &a.ParentAlarmID, &a.IsRootCause, &a.TicketID, &labelsRaw, &metadataRaw,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Severity = model.Severity(severity)
	a.Source = model.Source(source)
	a.Status = model.Status(status)
	_ = json.Unmarshal([]byte(labelsRaw), &a.Labels)
	_ = json.Unmarshal([]byte(metadataRaw), &a.Metadata)
	return &a, nil
}
