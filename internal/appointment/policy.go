package appointment

import (
	"fmt"
	"time"
)

// DefaultModificationWindow is how far ahead of the start a client may still
// cancel or reschedule.
const DefaultModificationWindow = 48 * time.Hour

type Event string

const (
	EventConfirm    Event = "confirm"
	EventCancel     Event = "cancel"
	EventReschedule Event = "reschedule"
	EventComplete   Event = "complete"
	EventNoShow     Event = "no_show"
)

// Policy holds the lifecycle rules. The zero value is not usable; see
// NewPolicy.
type Policy struct {
	Window        time.Duration
	InitialStatus Status
	TimeZone      *time.Location
}

func NewPolicy(tz *time.Location) Policy {
	if tz == nil {
		tz = time.UTC
	}
	return Policy{
		Window:        DefaultModificationWindow,
		InitialStatus: StatusPending,
		TimeZone:      tz,
	}
}

// Authorize checks that the actor may act on the appointment at all.
// Staff act on every record, clients only on their own.
func (p Policy) Authorize(a Appointment, actor Actor) error {
	if actor.IsStaff() {
		return nil
	}
	if actor.Role != RoleClient {
		return ErrUnauthenticated
	}
	if !a.OwnedBy(actor.Email) {
		return ErrUnauthorized
	}
	return nil
}

// WithinWindow reports whether there is still at least Window left before
// the appointment starts. Exactly Window is allowed.
func (p Policy) WithinWindow(a Appointment, now time.Time) bool {
	return a.StartAt(p.TimeZone).Sub(now) >= p.Window
}

// CanModify reports whether a cancel or reschedule would pass the guards.
func (p Policy) CanModify(a Appointment, actor Actor, now time.Time) error {
	if a.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if !actor.IsStaff() && !p.WithinWindow(a, now) {
		return fmt.Errorf("%w: changes must be made at least %s before the start", ErrModificationWindowClosed, p.Window)
	}
	return nil
}

// Transition computes the next status for an event without touching any
// store. It returns the target status or the reason the event is refused.
func (p Policy) Transition(a Appointment, ev Event, actor Actor, now time.Time) (Status, error) {
	switch ev {
	case EventCancel, EventReschedule:
		if err := p.CanModify(a, actor, now); err != nil {
			return a.Status, err
		}
		if ev == EventCancel {
			return StatusCancelled, nil
		}
		return StatusRescheduled, nil

	case EventConfirm:
		if !actor.IsStaff() {
			return a.Status, ErrUnauthorized
		}
		if a.Status.IsTerminal() {
			return a.Status, ErrAlreadyTerminal
		}
		if a.Status != StatusPending {
			return a.Status, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, StatusConfirmed)
		}
		return StatusConfirmed, nil

	case EventComplete, EventNoShow:
		if !actor.IsStaff() {
			return a.Status, ErrUnauthorized
		}
		target := StatusCompleted
		if ev == EventNoShow {
			target = StatusNoShow
		}
		if a.Status.IsTerminal() {
			return a.Status, ErrAlreadyTerminal
		}
		if a.Status != StatusConfirmed {
			return a.Status, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, target)
		}
		if now.Before(a.StartAt(p.TimeZone)) {
			return a.Status, ErrNotStarted
		}
		return target, nil
	}
	return a.Status, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev)
}

// EventFor maps a requested target status to the event that reaches it.
// Rescheduled has no direct event; it is only reached through a reschedule.
func EventFor(target Status) (Event, bool) {
	switch target {
	case StatusConfirmed:
		return EventConfirm, true
	case StatusCancelled:
		return EventCancel, true
	case StatusCompleted:
		return EventComplete, true
	case StatusNoShow:
		return EventNoShow, true
	}
	return "", false
}
