package appointment

import "errors"

var (
	ErrInvalidSlot              = errors.New("slot is not offered at that location and date")
	ErrSlotUnavailable          = errors.New("slot is already taken")
	ErrSlotBeingBooked          = errors.New("slot is currently being booked, please retry shortly")
	ErrModificationWindowClosed = errors.New("modification window has closed")
	ErrAlreadyTerminal          = errors.New("appointment is already closed")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrNotStarted               = errors.New("appointment has not started yet")
	ErrAppointmentNotFound      = errors.New("appointment not found")
	ErrUnknownService           = errors.New("unknown service")
	ErrNoServices               = errors.New("no services are configured")
	ErrUnauthenticated          = errors.New("authentication required")
	ErrUnauthorized             = errors.New("not allowed")
	ErrUnnormalizable           = errors.New("record cannot be normalized")
)
