// Package gormstore keeps appointments in SQLite through GORM. It serves
// single-node installs where running PostgreSQL is not worth it.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

var (
	_ appointment.Store   = (*Store)(nil)
	_ appointment.Auditor = (*Store)(nil)
)

type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates it. Use
// ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gorm open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db.DB(): %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:" shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&serviceRow{}, &appointmentRow{}, &eventRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// UpsertServices installs or renames services.
func (s *Store) UpsertServices(ctx context.Context, services []appointment.Service) error {
	if len(services) == 0 {
		return nil
	}
	rows := make([]serviceRow, len(services))
	for i, svc := range services {
		rows[i] = serviceRow{ID: svc.ID, Name: svc.Name, DurationMinutes: svc.Minutes()}
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
}

func (s *Store) ListServices(ctx context.Context) ([]appointment.Service, error) {
	var rows []serviceRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	out := make([]appointment.Service, len(rows))
	for i, r := range rows {
		out[i] = appointment.Service{ID: r.ID, Name: r.Name, Duration: r.DurationMinutes}
	}
	return out, nil
}

func (s *Store) ListAppointments(ctx context.Context, scope appointment.Scope) ([]appointment.Appointment, error) {
	q := s.db.WithContext(ctx).Preload("Service")
	if !scope.All {
		q = q.Where("lower(patient_email) = ?", strings.ToLower(strings.TrimSpace(scope.PatientEmail)))
	}
	var rows []appointmentRow
	if err := q.Order("appointment_date, start_minute, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	out := make([]appointment.Appointment, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*appointment.Appointment, error) {
	return s.get(s.db.WithContext(ctx), id)
}

func (s *Store) get(tx *gorm.DB, id string) (*appointment.Appointment, error) {
	var row appointmentRow
	if err := tx.Preload("Service").First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appointment.ErrAppointmentNotFound
		}
		return nil, err
	}
	a := row.toDomain()
	return &a, nil
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
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cand.IsActive() {
			if err := checkFree(tx, cand, req.Supersedes); err != nil {
				return err
			}
		}
		row := appointmentRow{
			ID:              uuid.NewString(),
			LocationID:      cand.LocationID,
			ServiceID:       cand.ServiceID,
			AppointmentDate: cand.Date.Format(dateLayout),
			StartMinute:     cand.StartMinute,
			DurationMinutes: cand.Duration,
			Status:          string(cand.Status),
			PatientName:     cand.Patient.Name,
			PatientEmail:    cand.Patient.Email,
			PatientPhone:    cand.Patient.Phone,
			Notes:           cand.Notes,
		}
		if err := tx.Omit("Service").Create(&row).Error; err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		if err := insertEvent(tx, appointment.EventAppointmentCreated, row.ID, nil); err != nil {
			return err
		}
		a, err := s.get(tx, row.ID)
		if err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) CancelAppointment(ctx context.Context, req appointment.CancelRequest) (*appointment.Appointment, error) {
	var out *appointment.Appointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.get(tx, req.ID)
		if err != nil {
			return err
		}
		switch current.Status {
		case appointment.StatusCancelled, appointment.StatusRescheduled:
			out = current
			return nil
		case appointment.StatusCompleted, appointment.StatusNoShow:
			return appointment.ErrAlreadyTerminal
		}

		target := req.TargetStatus()
		if err := tx.Model(&appointmentRow{}).Where("id = ?", req.ID).Updates(map[string]any{
			"status":              string(target),
			"cancellation_reason": req.Reason,
			"replaced_by":         req.ReplacedBy,
		}).Error; err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}
		if err := insertEvent(tx, appointment.EventForStatus(target), req.ID, []byte(fmt.Sprintf(`{"replaced_by":%q}`, req.ReplacedBy))); err != nil {
			return err
		}
		out, err = s.get(tx, req.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) PatchAppointment(ctx context.Context, id string, patch appointment.Patch) (*appointment.Appointment, error) {
	var out *appointment.Appointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.get(tx, id)
		if err != nil {
			return err
		}
		next := patch.Apply(*current)
		if next.IsActive() && (patch.Date != nil || patch.StartMinute != nil || !current.IsActive()) {
			if err := checkFree(tx, next, id); err != nil {
				return err
			}
		}
		if err := tx.Model(&appointmentRow{}).Where("id = ?", id).Updates(map[string]any{
			"appointment_date": next.Date.Format(dateLayout),
			"start_minute":     next.StartMinute,
			"status":           string(next.Status),
		}).Error; err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if err := insertEvent(tx, appointment.EventForStatus(next.Status), id, nil); err != nil {
			return err
		}
		out, err = s.get(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	row := eventRow{
		EventType:     ev.EventType,
		AppointmentID: ev.AppointmentID,
		Payload:       ev.Payload,
		CreatedAt:     ev.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// Events lists the audit log of one appointment, oldest first.
func (s *Store) Events(ctx context.Context, appointmentID string) ([]appointment.EventLog, error) {
	var rows []eventRow
	if err := s.db.WithContext(ctx).Where("appointment_id = ?", appointmentID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]appointment.EventLog, len(rows))
	for i, r := range rows {
		out[i] = appointment.EventLog{ID: r.ID, EventType: r.EventType, AppointmentID: r.AppointmentID, Payload: r.Payload, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

func checkFree(tx *gorm.DB, cand appointment.Appointment, selfID string) error {
	var n int64
	err := tx.Model(&appointmentRow{}).
		Where("location_id = ? AND appointment_date = ?", cand.LocationID, cand.Date.Format(dateLayout)).
		Where("status IN ?", []string{string(appointment.StatusPending), string(appointment.StatusConfirmed)}).
		Where("start_minute < ? AND start_minute + duration_minutes > ?", cand.EndMinute(), cand.StartMinute).
		Where("id <> ?", selfID).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if n > 0 {
		return appointment.ErrSlotUnavailable
	}
	return nil
}

func insertEvent(tx *gorm.DB, eventType, id string, payload []byte) error {
	if err := tx.Create(&eventRow{EventType: eventType, AppointmentID: id, Payload: payload, CreatedAt: time.Now().UTC()}).Error; err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
