package appointment

import (
	"context"
	"time"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventAppointmentUpdated     = "APPOINTMENT_UPDATED"
	EventReschedulePartial      = "RESCHEDULE_PARTIAL_FAILURE"
	EventReconciled             = "RECONCILED"
)

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID string
	Payload       []byte
	CreatedAt     time.Time
}

// Auditor is implemented by stores that keep an event log.
type Auditor interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

// EventForStatus names the audit event recorded when a record enters status.
func EventForStatus(s Status) string {
	switch s {
	case StatusConfirmed:
		return EventAppointmentConfirmed
	case StatusCancelled:
		return EventAppointmentCancelled
	case StatusRescheduled:
		return EventAppointmentRescheduled
	case StatusCompleted:
		return EventAppointmentCompleted
	case StatusNoShow:
		return EventAppointmentNoShow
	}
	return EventAppointmentUpdated
}
