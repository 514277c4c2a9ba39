package api

import (
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type CreateAppointmentRequest struct {
	Location  string              `json:"location"`
	ServiceID string              `json:"service_id"`
	Date      string              `json:"date"`
	Time      string              `json:"time"`
	Patient   appointment.Contact `json:"patient"`
	Notes     string              `json:"notes"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	Location string `json:"location"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

type PatchAppointmentRequest struct {
	Date   *string `json:"date"`
	Time   *string `json:"time"`
	Status *string `json:"status"`
}

type AppointmentResponse struct {
	ID                 string              `json:"id"`
	Location           string              `json:"location"`
	LocationLabel      string              `json:"location_label"`
	ServiceID          string              `json:"service_id"`
	ServiceName        string              `json:"service_name"`
	Date               string              `json:"date"`
	Time               string              `json:"time"`
	EndTime            string              `json:"end_time"`
	DurationMinutes    int                 `json:"duration_minutes"`
	Status             string              `json:"status"`
	Patient            appointment.Contact `json:"patient"`
	Notes              string              `json:"notes,omitempty"`
	CancellationReason string              `json:"cancellation_reason,omitempty"`
	ReplacedBy         string              `json:"replaced_by,omitempty"`
	Modifiable         bool                `json:"modifiable"`
	CreatedAt          *time.Time          `json:"created_at,omitempty"`
}

type PageResponse[T any] struct {
	Items    []T  `json:"items"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Total    int  `json:"total"`
	HasNext  bool `json:"has_next"`
	HasPrev  bool `json:"has_prev"`
}

type OpeningHours struct {
	Weekday string `json:"weekday"`
	Open    string `json:"open"`
	Close   string `json:"close"`
}

type LocationResponse struct {
	ID    string         `json:"id"`
	Label string         `json:"label"`
	Hours []OpeningHours `json:"hours"`
}

type SlotResponse struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type SlotsResponse struct {
	Location string         `json:"location"`
	Date     string         `json:"date"`
	Slots    []SlotResponse `json:"slots"`
}

type ServiceResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

type CalendarCellResponse struct {
	Date          string `json:"date"`
	InMonth       bool   `json:"in_month"`
	Appointments  int    `json:"appointments"`
	Active        int    `json:"active"`
	OccupiedSlots int    `json:"occupied_slots"`
	TotalSlots    int    `json:"total_slots"`
}

type CalendarMonthResponse struct {
	Year  int                      `json:"year"`
	Month int                      `json:"month"`
	Weeks [][]CalendarCellResponse `json:"weeks"`
}

type DaySlotResponse struct {
	Time          string `json:"time"`
	Occupied      bool   `json:"occupied"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Patient       string `json:"patient,omitempty"`
}

type CalendarDayResponse struct {
	Date         string                `json:"date"`
	Location     string                `json:"location"`
	Slots        []DaySlotResponse     `json:"slots"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type ErrorResponse struct {
	Error         string `json:"error"`
	Details       string `json:"details,omitempty"`
	Severity      string `json:"severity,omitempty"`
	Persistent    bool   `json:"persistent,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
	ReplacementID string `json:"replacement_id,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment, catalog *availability.Catalog, modifiable bool) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                 a.ID,
		Location:           a.LocationID,
		LocationLabel:      catalog.Label(a.LocationID),
		ServiceID:          a.ServiceID,
		ServiceName:        a.ServiceName,
		Date:               availability.FormatDate(a.Date),
		Time:               availability.FormatClock(a.StartMinute),
		EndTime:            availability.FormatClock(a.EndMinute()),
		DurationMinutes:    a.Minutes(),
		Status:             string(a.Status),
		Patient:            a.Patient,
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		ReplacedBy:         a.ReplacedBy,
		Modifiable:         modifiable,
	}
	if !a.CreatedAt.IsZero() {
		t := a.CreatedAt
		resp.CreatedAt = &t
	}
	return resp
}
