package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent. The partial unique index is the last line of defence
// against two active appointments starting on the same slot.
const schema = `
CREATE TABLE IF NOT EXISTS services (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	duration_minutes INT  NOT NULL DEFAULT 30
);

CREATE TABLE IF NOT EXISTS appointments (
	id                  TEXT PRIMARY KEY,
	location_id         TEXT        NOT NULL,
	service_id          TEXT        NOT NULL REFERENCES services (id),
	appointment_date    DATE        NOT NULL,
	start_minute        INT         NOT NULL,
	duration_minutes    INT         NOT NULL DEFAULT 30,
	status              TEXT        NOT NULL,
	patient_name        TEXT        NOT NULL,
	patient_email       TEXT        NOT NULL,
	patient_phone       TEXT        NOT NULL DEFAULT '',
	notes               TEXT        NOT NULL DEFAULT '',
	cancellation_reason TEXT        NOT NULL DEFAULT '',
	replaced_by         TEXT        NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot
	ON appointments (location_id, appointment_date, start_minute)
	WHERE status IN ('pending', 'confirmed');

CREATE INDEX IF NOT EXISTS appointments_patient_email
	ON appointments (lower(patient_email));

CREATE TABLE IF NOT EXISTS event_logs (
	id             BIGSERIAL PRIMARY KEY,
	event_type     TEXT        NOT NULL,
	appointment_id TEXT,
	payload        JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS event_logs_type_created
	ON event_logs (event_type, created_at);
`

// EnsureSchema creates the tables the store needs.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
