package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleServiceError maps scheduling errors onto HTTP responses.
func handleServiceError(w http.ResponseWriter, err error) {
	var rerr *scheduling.RescheduleError
	switch {
	case errors.As(err, &rerr) && rerr.Partial():
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:         "partial_reschedule_failure",
			Details:       err.Error(),
			Severity:      "critical",
			Persistent:    true,
			AppointmentID: rerr.SourceID,
			ReplacementID: rerr.ReplacementID,
		})
	case errors.Is(err, scheduling.ErrRescheduleFailed):
		writeError(w, http.StatusBadGateway, "modification_failed", err.Error())
	case errors.Is(err, appointment.ErrInvalidSlot):
		writeError(w, http.StatusUnprocessableEntity, "invalid_slot", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrModificationWindowClosed):
		writeError(w, http.StatusUnprocessableEntity, "modification_window_closed", err.Error())
	case errors.Is(err, appointment.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, "already_terminal", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrNotStarted):
		writeError(w, http.StatusConflict, "not_started", err.Error())
	case errors.Is(err, appointment.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, appointment.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, availability.ErrUnknownLocation):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrUnknownService):
		writeError(w, http.StatusUnprocessableEntity, "unknown_service", err.Error())
	case errors.Is(err, appointment.ErrNoServices):
		writeError(w, http.StatusServiceUnavailable, "no_services", err.Error())
	case errors.Is(err, appointment.ErrUnnormalizable):
		writeError(w, http.StatusBadGateway, "unnormalizable_record", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
