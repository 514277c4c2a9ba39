package gormstore

import (
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// services
type serviceRow struct {
	ID              string `gorm:"primaryKey;type:varchar(64)"`
	Name            string `gorm:"type:varchar(255);not null"`
	DurationMinutes int    `gorm:"not null;default:30"`
}

func (serviceRow) TableName() string { return "services" }

// appointments
type appointmentRow struct {
	ID                 string    `gorm:"primaryKey;type:varchar(64)"`
	LocationID         string    `gorm:"type:varchar(64);not null;index:idx_slot,priority:1"`
	ServiceID          string    `gorm:"type:varchar(64);not null"`
	AppointmentDate    string    `gorm:"type:varchar(10);not null;index:idx_slot,priority:2"`
	StartMinute        int       `gorm:"not null;index:idx_slot,priority:3"`
	DurationMinutes    int       `gorm:"not null;default:30"`
	Status             string    `gorm:"type:varchar(32);not null;index"`
	PatientName        string    `gorm:"type:varchar(255);not null"`
	PatientEmail       string    `gorm:"type:varchar(255);not null;index"`
	PatientPhone       string    `gorm:"type:varchar(64)"`
	Notes              string    `gorm:"type:text"`
	CancellationReason string    `gorm:"type:text"`
	ReplacedBy         string    `gorm:"type:varchar(64)"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`

	Service *serviceRow `gorm:"foreignKey:ServiceID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (appointmentRow) TableName() string { return "appointments" }

// event_logs
type eventRow struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	EventType     string    `gorm:"type:varchar(64);not null;index"`
	AppointmentID string    `gorm:"type:varchar(64);index"`
	Payload       []byte    `gorm:"type:blob"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (eventRow) TableName() string { return "event_logs" }

const dateLayout = "2006-01-02"

func (r appointmentRow) toDomain() appointment.Appointment {
	date, _ := time.Parse(dateLayout, r.AppointmentDate)
	a := appointment.Appointment{
		ID:                 r.ID,
		LocationID:         r.LocationID,
		ServiceID:          r.ServiceID,
		Date:               date,
		StartMinute:        r.StartMinute,
		Duration:           r.DurationMinutes,
		Status:             appointment.Status(r.Status),
		Patient:            appointment.Contact{Name: r.PatientName, Email: r.PatientEmail, Phone: r.PatientPhone},
		Notes:              r.Notes,
		CancellationReason: r.CancellationReason,
		ReplacedBy:         r.ReplacedBy,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.Service != nil {
		a.ServiceName = r.Service.Name
	}
	return a
}
