package appointment

import (
	"context"
	"time"
)

// Scope limits a listing to one patient's records or to all of them.
type Scope struct {
	All          bool
	PatientEmail string
}

func ScopeAll() Scope { return Scope{All: true} }

func ScopeMine(email string) Scope { return Scope{PatientEmail: email} }

// Includes reports whether the appointment is visible within the scope.
func (s Scope) Includes(a Appointment) bool {
	return s.All || a.OwnedBy(s.PatientEmail)
}

type CreateRequest struct {
	LocationID  string
	ServiceID   string
	Date        time.Time
	StartMinute int
	Duration    int
	Status      Status
	Patient     Contact
	Notes       string
	// Supersedes names an active appointment this one replaces. Overlap
	// checks ignore it, so a booking can move into its own interval.
	Supersedes string
}

// Candidate returns the appointment the request would create, without id.
func (r CreateRequest) Candidate() Appointment {
	return Appointment{
		LocationID:  r.LocationID,
		ServiceID:   r.ServiceID,
		Date:        r.Date,
		StartMinute: r.StartMinute,
		Duration:    r.Duration,
		Status:      r.Status,
		Patient:     r.Patient,
		Notes:       r.Notes,
	}
}

// CancelRequest closes an appointment. A non-empty ReplacedBy marks the
// record as rescheduled rather than cancelled.
type CancelRequest struct {
	ID         string
	Reason     string
	ReplacedBy string
}

// TargetStatus is the status the cancelled record ends in.
func (r CancelRequest) TargetStatus() Status {
	if r.ReplacedBy != "" {
		return StatusRescheduled
	}
	return StatusCancelled
}

// Patch carries the fields a staff update may change. Nil means unchanged.
type Patch struct {
	Date        *time.Time
	StartMinute *int
	Status      *Status
}

func (p Patch) Empty() bool {
	return p.Date == nil && p.StartMinute == nil && p.Status == nil
}

// Apply returns a copy of a with the patch applied.
func (p Patch) Apply(a Appointment) Appointment {
	if p.Date != nil {
		a.Date = *p.Date
	}
	if p.StartMinute != nil {
		a.StartMinute = *p.StartMinute
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	return a
}

// Store is the system of record for appointments. Implementations arbitrate
// slot conflicts: CreateAppointment returns ErrSlotUnavailable when an active
// appointment already claims the time. Cancelling a record that is already
// cancelled or rescheduled succeeds and returns it unchanged.
type Store interface {
	ListServices(ctx context.Context) ([]Service, error)
	ListAppointments(ctx context.Context, scope Scope) ([]Appointment, error)
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error)
	CancelAppointment(ctx context.Context, req CancelRequest) (*Appointment, error)
	PatchAppointment(ctx context.Context, id string, patch Patch) (*Appointment, error)
}
