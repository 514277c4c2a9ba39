package appointment

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusRescheduled Status = "rescheduled"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
	StatusNoShow      Status = "no_show"
)

// DefaultDuration applies when a service has no duration of its own.
const DefaultDuration = 30

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusRescheduled,
	StatusCancelled,
	StatusCompleted,
	StatusNoShow,
}

// IsActive reports whether an appointment in this status occupies its slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// IsTerminal reports whether no transition leaves this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Service struct {
	ID       string
	Name     string
	Duration int
}

// Minutes returns the service length, falling back to DefaultDuration.
func (s Service) Minutes() int {
	if s.Duration <= 0 {
		return DefaultDuration
	}
	return s.Duration
}

type Appointment struct {
	ID          string
	LocationID  string
	ServiceID   string
	ServiceName string
	// Date is a civil date: midnight UTC carrying the clinic calendar day.
	Date               time.Time
	StartMinute        int
	Duration           int
	Status             Status
	Patient            Contact
	Notes              string
	CancellationReason string
	ReplacedBy         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a Appointment) Minutes() int {
	if a.Duration <= 0 {
		return DefaultDuration
	}
	return a.Duration
}

func (a Appointment) EndMinute() int { return a.StartMinute + a.Minutes() }

func (a Appointment) IsActive() bool { return a.Status.IsActive() }

// Covers reports whether minute falls inside [start, start+duration).
func (a Appointment) Covers(minute int) bool {
	return a.StartMinute <= minute && minute < a.EndMinute()
}

// Overlaps reports whether both appointments claim time on the same day
// and location.
func (a Appointment) Overlaps(b Appointment) bool {
	if a.LocationID != b.LocationID || !sameDay(a.Date, b.Date) {
		return false
	}
	return a.StartMinute < b.EndMinute() && b.StartMinute < a.EndMinute()
}

// StartAt is the absolute start instant in the clinic time zone.
func (a Appointment) StartAt(tz *time.Location) time.Time {
	if tz == nil {
		tz = time.UTC
	}
	return time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, tz).
		Add(time.Duration(a.StartMinute) * time.Minute)
}

// OwnedBy reports whether the appointment belongs to the given patient email.
func (a Appointment) OwnedBy(email string) bool {
	return email != "" && strings.EqualFold(strings.TrimSpace(a.Patient.Email), strings.TrimSpace(email))
}

func (a Appointment) OnDay(day time.Time) bool { return sameDay(a.Date, day) }

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
