// Package pgstore keeps appointments in PostgreSQL. Bookings are serialized
// per location day with a Redis lock and backed by a partial unique index.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

var (
	_ appointment.Store   = (*Store)(nil)
	_ appointment.Auditor = (*Store)(nil)
)

const uniqueViolation = "23505"

type Store struct {
	pool   *pgxpool.Pool
	locker redisclient.Locker
}

// New builds a store. A nil locker leaves conflict detection to the database.
func New(pool *pgxpool.Pool, locker redisclient.Locker) *Store {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	return &Store{pool: pool, locker: locker}
}

const appointmentColumns = `
	a.id, a.location_id, a.service_id, COALESCE(s.name, ''), a.appointment_date,
	a.start_minute, a.duration_minutes, a.status, a.patient_name, a.patient_email,
	a.patient_phone, a.notes, a.cancellation_reason, a.replaced_by, a.created_at, a.updated_at`

const selectAppointments = `SELECT` + appointmentColumns + `
	FROM appointments a
	LEFT JOIN services s ON s.id = a.service_id`

func scanAppointment(row pgx.Row) (*appointment.Appointment, error) {
	var a appointment.Appointment
	var status string

	err := row.Scan(
		&a.ID,
		&a.LocationID,
		&a.ServiceID,
		&a.ServiceName,
		&a.Date,
		&a.StartMinute,
		&a.Duration,
		&status,
		&a.Patient.Name,
		&a.Patient.Email,
		&a.Patient.Phone,
		&a.Notes,
		&a.CancellationReason,
		&a.ReplacedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appointment.ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = appointment.Status(status)
	a.Date = time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, time.UTC)
	return &a, nil
}

func (s *Store) ListServices(ctx context.Context) ([]appointment.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, duration_minutes
		FROM services
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var out []appointment.Service
	for rows.Next() {
		var svc appointment.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Duration); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// UpsertServices installs or renames services. Used by seeding.
func (s *Store) UpsertServices(ctx context.Context, services []appointment.Service) error {
	batch := &pgx.Batch{}
	for _, svc := range services {
		batch.Queue(`
			INSERT INTO services (id, name, duration_minutes)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, duration_minutes = EXCLUDED.duration_minutes
		`, svc.ID, svc.Name, svc.Minutes())
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert services: %w", err)
	}
	return nil
}

func (s *Store) ListAppointments(ctx context.Context, scope appointment.Scope) ([]appointment.Appointment, error) {
	query := selectAppointments
	var args []any
	if !scope.All {
		query += ` WHERE lower(a.patient_email) = lower($1)`
		args = append(args, strings.TrimSpace(scope.PatientEmail))
	}
	query += ` ORDER BY a.appointment_date, a.start_minute, a.id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var result []appointment.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*appointment.Appointment, error) {
	row := s.pool.QueryRow(ctx, selectAppointments+` WHERE a.id = $1`, id)
	return scanAppointment(row)
}

func (s *Store) CreateAppointment(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error) {
	cand := req.Candidate()
	if cand.Status == "" {
		cand.Status = appointment.StatusPending
	}
	if cand.Duration <= 0 {
		cand.Duration = appointment.DefaultDuration
	}

	var created *appointment.Appointment
	err := s.locker.WithSlotLock(ctx, redisclient.SlotKey(cand.LocationID, cand.Date), func(lockCtx context.Context) error {
		// Inside the critical section re-check for an overlapping active booking
		if cand.IsActive() {
			if err := s.checkFree(lockCtx, cand, req.Supersedes); err != nil {
				return err
			}
		}

		id := uuid.NewString()
		if _, err := s.pool.Exec(lockCtx, `
			INSERT INTO appointments (
				id, location_id, service_id, appointment_date, start_minute, duration_minutes,
				status, patient_name, patient_email, patient_phone, notes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		`, id, cand.LocationID, cand.ServiceID, cand.Date, cand.StartMinute, cand.Duration,
			string(cand.Status), cand.Patient.Name, cand.Patient.Email, cand.Patient.Phone, cand.Notes); err != nil {
			if isUniqueViolation(err) {
				return appointment.ErrSlotUnavailable
			}
			return fmt.Errorf("insert appointment: %w", err)
		}

		a, err := s.GetAppointment(lockCtx, id)
		if err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, lockError(err)
	}

	s.logEvent(ctx, created.ID, appointment.EventAppointmentCreated, map[string]any{
		"location": created.LocationID,
		"date":     created.Date.Format("2006-01-02"),
		"minute":   created.StartMinute,
		"status":   string(created.Status),
	})
	return created, nil
}

func (s *Store) CancelAppointment(ctx context.Context, req appointment.CancelRequest) (*appointment.Appointment, error) {
	target := req.TargetStatus()
	row := s.pool.QueryRow(ctx, `
		WITH updated AS (
			UPDATE appointments
			SET status = $2,
			    cancellation_reason = $3,
			    replaced_by = $4,
			    updated_at = now()
			WHERE id = $1
			  AND status IN ('pending', 'confirmed')
			RETURNING *
		)
		SELECT`+strings.ReplaceAll(appointmentColumns, "a.", "u.")+`
		FROM updated u
		LEFT JOIN services s ON s.id = u.service_id
	`, req.ID, string(target), req.Reason, req.ReplacedBy)

	a, err := scanAppointment(row)
	if err == nil {
		s.logEvent(ctx, a.ID, appointment.EventForStatus(target), map[string]any{
			"reason":      req.Reason,
			"replaced_by": req.ReplacedBy,
		})
		return a, nil
	}
	if !errors.Is(err, appointment.ErrAppointmentNotFound) {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	// Nothing updated: either missing or no longer active.
	current, err := s.GetAppointment(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case appointment.StatusCancelled, appointment.StatusRescheduled:
		return current, nil
	}
	return nil, appointment.ErrAlreadyTerminal
}

func (s *Store) PatchAppointment(ctx context.Context, id string, patch appointment.Patch) (*appointment.Appointment, error) {
	current, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	next := patch.Apply(*current)

	update := func(ctx context.Context) error {
		if next.IsActive() && (patch.Date != nil || patch.StartMinute != nil || !current.IsActive()) {
			if err := s.checkFree(ctx, next, id); err != nil {
				return err
			}
		}
		tag, err := s.pool.Exec(ctx, `
			UPDATE appointments
			SET appointment_date = $2,
			    start_minute = $3,
			    status = $4,
			    updated_at = now()
			WHERE id = $1
			  AND status = $5
		`, id, next.Date, next.StartMinute, string(next.Status), string(current.Status))
		if err != nil {
			if isUniqueViolation(err) {
				return appointment.ErrSlotUnavailable
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: status changed concurrently", appointment.ErrInvalidTransition)
		}
		return nil
	}

	if patch.Date != nil || patch.StartMinute != nil {
		err = lockError(s.locker.WithSlotLock(ctx, redisclient.SlotKey(next.LocationID, next.Date), update))
	} else {
		err = update(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, id, appointment.EventForStatus(next.Status), map[string]any{
		"from":   string(current.Status),
		"to":     string(next.Status),
		"date":   next.Date.Format("2006-01-02"),
		"minute": next.StartMinute,
	})
	return s.GetAppointment(ctx, id)
}

func (s *Store) checkFree(ctx context.Context, cand appointment.Appointment, selfID string) error {
	var conflicting string
	err := s.pool.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE location_id = $1
		  AND appointment_date = $2
		  AND status IN ('pending', 'confirmed')
		  AND start_minute < $4
		  AND start_minute + duration_minutes > $3
		  AND id <> $5
		LIMIT 1
	`, cand.LocationID, cand.Date, cand.StartMinute, cand.EndMinute(), selfID).Scan(&conflicting)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	return appointment.ErrSlotUnavailable
}

func (s *Store) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	var appID *string
	if ev.AppointmentID != "" {
		appID = &ev.AppointmentID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// OpenReconciliations lists partial reschedule failures that have no later
// RECONCILED event for the same appointment.
func (s *Store) OpenReconciliations(ctx context.Context) ([]appointment.EventLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.event_type, COALESCE(e.appointment_id, ''), e.payload, e.created_at
		FROM event_logs e
		WHERE e.event_type = $1
		  AND NOT EXISTS (
			SELECT 1 FROM event_logs r
			WHERE r.event_type = $2
			  AND r.appointment_id = e.appointment_id
			  AND r.created_at >= e.created_at
		  )
		ORDER BY e.created_at
	`, appointment.EventReschedulePartial, appointment.EventReconciled)
	if err != nil {
		return nil, fmt.Errorf("query open reconciliations: %w", err)
	}
	defer rows.Close()

	var out []appointment.EventLog
	for rows.Next() {
		var ev appointment.EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) logEvent(ctx context.Context, id, eventType string, payload map[string]any) {
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = s.InsertEvent(ctx, appointment.EventLog{
		EventType:     eventType,
		AppointmentID: id,
		Payload:       b,
	})
}

// lockError reports contention on the location-day lock as a retryable
// condition; the requested slot itself may still be free.
func lockError(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return fmt.Errorf("%w: %v", appointment.ErrSlotBeingBooked, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
