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

const windowColumns = `
	id, tenant_id, name, start_time, end_time, status, suppress_alarms, affected_resources, created_at, updated_at`

// PgMaintenanceStore is the PostgreSQL-backed MaintenanceStore.
type PgMaintenanceStore struct {
	DB *adb.Database
}

func NewPgMaintenanceStore(db *adb.Database) *PgMaintenanceStore {
	return &PgMaintenanceStore{DB: db}
}

func (s *PgMaintenanceStore) Insert(ctx context.Context, w *model.MaintenanceWindow) error {
	resources, err := json.Marshal(w.AffectedResources)
	if err != nil {
		return fmt.Errorf("marshal affected resources: %w", err)
	}
	const q = `
	INSERT INTO maintenance_windows(` + windowColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9,$10)
	`
	_, err = s.DB.Exec(ctx, q, w.ID, w.TenantID, w.Name, w.StartTime, w.EndTime, string(w.Status), w.SuppressAlarms, string(resources), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert maintenance window: %w", err)
	}
	return nil
}

func (s *PgMaintenanceStore) Get(ctx context.Context, tenantID, id string) (*model.MaintenanceWindow, error) {
	const q = `SELECT ` + windowColumns + ` FROM maintenance_windows WHERE tenant_id=$1 AND id=$2`
	w, err := scanWindow(s.DB.QueryRow(ctx, q, tenantID, id))
	if err == pgx.ErrNoRows {
		return nil, &model.NotFoundError{Kind: "maintenance window", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get maintenance window: %w", err)
	}
	return w, nil
}

func (s *PgMaintenanceStore) UpdateStatus(ctx context.Context, tenantID, id string, status model.MaintenanceStatus) error {
	const q = `UPDATE maintenance_windows SET status=$3, updated_at=now() WHERE tenant_id=$1 AND id=$2`
	tag, err := s.DB.Exec(ctx, q, tenantID, id, string(status))
	if err != nil {
		return fmt.Errorf("update maintenance status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Kind: "maintenance window", ID: id}
	}
	return nil
}

func (s *PgMaintenanceStore) ActiveAt(ctx context.Context, tenantID string, at time.Time) ([]*model.MaintenanceWindow, error) {
	const q = `SELECT ` + windowColumns + ` FROM maintenance_windows
	WHERE tenant_id=$1 AND status <> 'completed' AND start_time <= $2 AND end_time > $2
	ORDER BY start_time ASC`
	return s.list(ctx, q, tenantID, at)
}

func (s *PgMaintenanceStore) ListOverlapping(ctx context.Context, tenantID string, from, to time.Time) ([]*model.MaintenanceWindow, error) {
	const q = `SELECT ` + windowColumns + ` FROM maintenance_windows
	WHERE tenant_id=$1 AND start_time < $2 AND end_time > $3
	ORDER BY start_time ASC`
	return s.list(ctx, q, tenantID, to, from)
}

func (s *PgMaintenanceStore) ListPendingTransitions(ctx context.Context, now time.Time) ([]*model.MaintenanceWindow, error) {
	const q = `SELECT ` + windowColumns + ` FROM maintenance_windows
	WHERE (status = 'scheduled' AND start_time <= $1)
	   OR (status <> 'completed' AND end_time <= $1)
	ORDER BY start_time ASC`
	return s.list(ctx, q, now)
}

func (s *PgMaintenanceStore) list(ctx context.Context, q string, args ...any) ([]*model.MaintenanceWindow, error) {
	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list maintenance windows: %w", err)
	}
	defer rows.Close()
	var out []*model.MaintenanceWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan maintenance window: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWindow(row pgx.Row) (*model.MaintenanceWindow, error) {
	var w model.MaintenanceWindow
	var status, resourcesRaw string
	err := row.Scan(&w.ID, &w.TenantID, &w.Name, &w.StartTime, &w.EndTime, &status, &w.SuppressAlarms, &resourcesRaw, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Status = model.MaintenanceStatus(status)
	_ = json.Unmarshal([]byte(resourcesRaw), &w.AffectedResources)
	return &w, nil
}
