package database

import (
	"context"
	"fmt"
)

// schema holds the alarming tables. The partial unique index on alarms backs
// the "dedup match, else create" race: two concurrent creations of the same
// open external alarm collide on the index instead of both inserting. The
// unique index on sla_breaches enforces one unresolved breach per
// (instance, breach_type).
const schema = `
CREATE TABLE IF NOT EXISTS alarms (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	alarm_id         TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	severity         TEXT NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	alarm_type       TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	first_occurrence TIMESTAMPTZ NOT NULL,
	last_occurrence  TIMESTAMPTZ NOT NULL,
	occurrence_count INT NOT NULL DEFAULT 1,
	acknowledged_at  TIMESTAMPTZ,
	acknowledged_by  TEXT NOT NULL DEFAULT '',
	cleared_at       TIMESTAMPTZ,
	resolved_at      TIMESTAMPTZ,
	resource_type    TEXT NOT NULL DEFAULT '',
	resource_id      TEXT NOT NULL DEFAULT '',
	resource_name    TEXT NOT NULL DEFAULT '',
	customer_id      TEXT NOT NULL DEFAULT '',
	customer_name    TEXT NOT NULL DEFAULT '',
	subscriber_count INT NOT NULL DEFAULT 0,
	correlation_id   TEXT NOT NULL DEFAULT '',
	parent_alarm_id  TEXT NOT NULL DEFAULT '',
	is_root_cause    BOOLEAN NOT NULL DEFAULT FALSE,
	ticket_id        TEXT NOT NULL DEFAULT '',
	labels           JSONB NOT NULL DEFAULT '{}',
	metadata         JSONB NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS alarms_open_external
	ON alarms (tenant_id, alarm_id, resource_id)
	WHERE status <> 'cleared';
CREATE INDEX IF NOT EXISTS alarms_tenant_status ON alarms (tenant_id, status);
CREATE INDEX IF NOT EXISTS alarms_correlation ON alarms (tenant_id, correlation_id);

CREATE TABLE IF NOT EXISTS alarm_rules (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	name       TEXT NOT NULL,
	rule_type  TEXT NOT NULL,
	enabled    BOOLEAN NOT NULL DEFAULT TRUE,
	priority   INT NOT NULL DEFAULT 100,
	predicate  JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, name)
);

CREATE TABLE IF NOT EXISTS maintenance_windows (
	id                 TEXT PRIMARY KEY,
	tenant_id          TEXT NOT NULL,
	name               TEXT NOT NULL,
	start_time         TIMESTAMPTZ NOT NULL,
	end_time           TIMESTAMPTZ NOT NULL,
	status             TEXT NOT NULL DEFAULT 'scheduled',
	suppress_alarms    BOOLEAN NOT NULL DEFAULT FALSE,
	affected_resources JSONB NOT NULL DEFAULT '{}',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS maintenance_tenant_time
	ON maintenance_windows (tenant_id, start_time, end_time);

CREATE TABLE IF NOT EXISTS sla_definitions (
	id                      TEXT PRIMARY KEY,
	tenant_id               TEXT NOT NULL,
	name                    TEXT NOT NULL,
	availability_target     DOUBLE PRECISION NOT NULL,
	response_time_target    DOUBLE PRECISION NOT NULL DEFAULT 0,
	resolution_time_target  DOUBLE PRECISION NOT NULL DEFAULT 0,
	response_by_severity    JSONB NOT NULL DEFAULT '{}',
	resolution_by_severity  JSONB NOT NULL DEFAULT '{}',
	measurement_period_days INT NOT NULL DEFAULT 30,
	exclude_maintenance     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS sla_instances (
	id                   TEXT PRIMARY KEY,
	tenant_id            TEXT NOT NULL,
	definition_id        TEXT NOT NULL REFERENCES sla_definitions(id),
	customer_id          TEXT NOT NULL,
	service_id           TEXT NOT NULL DEFAULT '',
	start_date           TIMESTAMPTZ NOT NULL,
	end_date             TIMESTAMPTZ NOT NULL,
	enabled              BOOLEAN NOT NULL DEFAULT TRUE,
	total_downtime       DOUBLE PRECISION NOT NULL DEFAULT 0,
	planned_downtime     DOUBLE PRECISION NOT NULL DEFAULT 0,
	unplanned_downtime   DOUBLE PRECISION NOT NULL DEFAULT 0,
	current_availability DOUBLE PRECISION NOT NULL DEFAULT 100,
	status               TEXT NOT NULL DEFAULT 'compliant',
	breach_count         INT NOT NULL DEFAULT 0,
	last_breach_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS sla_instances_customer ON sla_instances (tenant_id, customer_id);

CREATE TABLE IF NOT EXISTS sla_breaches (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	instance_id       TEXT NOT NULL REFERENCES sla_instances(id),
	breach_type       TEXT NOT NULL,
	severity          TEXT NOT NULL,
	target_value      DOUBLE PRECISION NOT NULL,
	actual_value      DOUBLE PRECISION NOT NULL,
	deviation_percent DOUBLE PRECISION NOT NULL,
	alarm_id          TEXT NOT NULL DEFAULT '',
	resolved          BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at       TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS sla_breaches_open
	ON sla_breaches (instance_id, breach_type)
	WHERE NOT resolved;
`

// EnsureSchema creates the alarming tables if they do not exist yet.
func (d *Database) EnsureSchema(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
