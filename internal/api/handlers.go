package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/listing"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

type handlers struct {
	svc       *scheduling.Service
	catalog   *availability.Catalog
	projector *calendar.Projector
	lister    *listing.Lister
}

func (h *handlers) respond(w http.ResponseWriter, r *http.Request, status int, a *appointment.Appointment) {
	actor := auth.ActorFromContext(r.Context())
	writeJSON(w, status, toAppointmentResponse(*a, h.catalog, h.svc.Modifiable(*a, actor)))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func parseSlot(w http.ResponseWriter, date, clock string) (time.Time, int, bool) {
	d, err := availability.ParseDate(date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return time.Time{}, 0, false
	}
	m, err := availability.ParseClock(clock)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
		return time.Time{}, 0, false
	}
	return d, m, true
}

// load fetches the appointment named in the URL for the current actor.
func (h *handlers) load(w http.ResponseWriter, r *http.Request) (*appointment.Appointment, bool) {
	a, err := h.svc.Appointment(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	return a, true
}

func (h *handlers) listLocations(w http.ResponseWriter, r *http.Request) {
	locs := h.catalog.Locations()
	out := make([]LocationResponse, 0, len(locs))
	for _, l := range locs {
		resp := LocationResponse{ID: l.ID, Label: l.Label, Hours: []OpeningHours{}}
		for d := time.Sunday; d <= time.Saturday; d++ {
			if win, ok := l.WindowOn(d); ok {
				resp.Hours = append(resp.Hours, OpeningHours{
					Weekday: d.String(),
					Open:    availability.FormatClock(win.Start),
					Close:   availability.FormatClock(win.End),
				})
			}
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "id")
	date, err := availability.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	free, err := h.svc.AvailableSlots(r.Context(), locationID, date)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	freeSet := make(map[int]bool, len(free))
	for _, m := range free {
		freeSet[m] = true
	}

	all := h.catalog.SlotsFor(locationID, date)
	resp := SlotsResponse{Location: locationID, Date: availability.FormatDate(date), Slots: make([]SlotResponse, 0, len(all))}
	for _, m := range all {
		resp.Slots = append(resp.Slots, SlotResponse{Time: availability.FormatClock(m), Available: freeSet[m]})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.svc.Services(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]ServiceResponse, len(services))
	for i, s := range services {
		out[i] = ServiceResponse{ID: s.ID, Name: s.Name, DurationMinutes: s.Minutes()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFromContext(r.Context())
	snap, err := h.svc.Snapshot(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	q := r.URL.Query()
	filtered := h.lister.Apply(snap, listing.Query{
		Text:     q.Get("q"),
		Status:   q.Get("status"),
		Location: q.Get("location"),
		Sort:     listing.ParseSortKey(q.Get("sort")),
	})
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	p := listing.Paginate(filtered, page, size)

	items := make([]AppointmentResponse, len(p.Items))
	for i, a := range p.Items {
		items[i] = toAppointmentResponse(a, h.catalog, h.svc.Modifiable(a, actor))
	}
	writeJSON(w, http.StatusOK, PageResponse[AppointmentResponse]{
		Items:    items,
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    p.Total,
		HasNext:  p.HasNext,
		HasPrev:  p.HasPrev,
	})
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusOK, a)
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decode(w, r, &req) {
		return
	}
	date, minute, ok := parseSlot(w, req.Date, req.Time)
	if !ok {
		return
	}

	a, err := h.svc.Create(r.Context(), auth.ActorFromContext(r.Context()), scheduling.BookingRequest{
		LocationID:  strings.ToLower(strings.TrimSpace(req.Location)),
		ServiceID:   req.ServiceID,
		Date:        date,
		StartMinute: minute,
		Patient:     req.Patient,
		Notes:       req.Notes,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.respond(w, r, http.StatusCreated, a)
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req CancelAppointmentRequest
	if !decode(w, r, &req) {
		return
	}
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	updated, err := h.svc.Cancel(r.Context(), auth.ActorFromContext(r.Context()), *a, req.Reason)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, updated)
}

func (h *handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req RescheduleAppointmentRequest
	if !decode(w, r, &req) {
		return
	}
	date, minute, ok := parseSlot(w, req.Date, req.Time)
	if !ok {
		return
	}
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	replacement, err := h.svc.Reschedule(r.Context(), auth.ActorFromContext(r.Context()), *a, scheduling.Slot{
		LocationID:  strings.ToLower(strings.TrimSpace(req.Location)),
		Date:        date,
		StartMinute: minute,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.respond(w, r, http.StatusCreated, replacement)
}

func (h *handlers) transition(w http.ResponseWriter, r *http.Request, fn func(appointment.Actor, appointment.Appointment) (*appointment.Appointment, error)) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	updated, err := fn(auth.ActorFromContext(r.Context()), *a)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, updated)
}

func (h *handlers) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor appointment.Actor, a appointment.Appointment) (*appointment.Appointment, error) {
		return h.svc.Confirm(r.Context(), actor, a)
	})
}

func (h *handlers) completeAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor appointment.Actor, a appointment.Appointment) (*appointment.Appointment, error) {
		return h.svc.Complete(r.Context(), actor, a)
	})
}

func (h *handlers) noShowAppointment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(actor appointment.Actor, a appointment.Appointment) (*appointment.Appointment, error) {
		return h.svc.MarkNoShow(r.Context(), actor, a)
	})
}

func (h *handlers) patchAppointment(w http.ResponseWriter, r *http.Request) {
	var req PatchAppointmentRequest
	if !decode(w, r, &req) {
		return
	}

	var patch appointment.Patch
	if req.Date != nil {
		d, err := availability.ParseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		patch.Date = &d
	}
	if req.Time != nil {
		m, err := availability.ParseClock(*req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}
		patch.StartMinute = &m
	}
	if req.Status != nil {
		s, ok := appointment.LookupStatus(*req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+strconv.Quote(*req.Status))
			return
		}
		patch.Status = &s
	}

	a, ok := h.load(w, r)
	if !ok {
		return
	}
	updated, err := h.svc.Update(r.Context(), auth.ActorFromContext(r.Context()), *a, patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, updated)
}

func locationFilter(r *http.Request) []string {
	loc := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("location")))
	if loc == "" || loc == "all" {
		return nil
	}
	return []string{loc}
}

// staffOnly rejects non-staff actors. It reports whether the handler may go on.
func staffOnly(w http.ResponseWriter, r *http.Request) bool {
	if !auth.ActorFromContext(r.Context()).IsStaff() {
		writeError(w, http.StatusForbidden, "unauthorized", "calendar views are staff only")
		return false
	}
	return true
}

func (h *handlers) calendarMonth(w http.ResponseWriter, r *http.Request) {
	if !staffOnly(w, r) {
		return
	}
	q := r.URL.Query()
	now := h.svc.Now().In(h.catalog.TimeZone())
	year, month := now.Year(), now.Month()
	if v := q.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_year", "year must be a positive number")
			return
		}
		year = n
	}
	if v := q.Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 12 {
			writeError(w, http.StatusBadRequest, "invalid_month", "month must be 1-12")
			return
		}
		month = time.Month(n)
	}

	snap, err := h.svc.Snapshot(r.Context(), auth.ActorFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	m := h.projector.Month(snap, year, month, locationFilter(r)...)

	resp := CalendarMonthResponse{Year: m.Year, Month: int(m.Month), Weeks: make([][]CalendarCellResponse, len(m.Weeks))}
	for i, week := range m.Weeks {
		cells := make([]CalendarCellResponse, len(week))
		for j, c := range week {
			cells[j] = CalendarCellResponse{
				Date:          availability.FormatDate(c.Date),
				InMonth:       c.InMonth,
				Appointments:  c.Appointments,
				Active:        c.Active,
				OccupiedSlots: c.OccupiedSlots,
				TotalSlots:    c.TotalSlots,
			}
		}
		resp.Weeks[i] = cells
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) calendarDay(w http.ResponseWriter, r *http.Request) {
	if !staffOnly(w, r) {
		return
	}
	date, err := availability.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	actor := auth.ActorFromContext(r.Context())
	snap, err := h.svc.Snapshot(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	days := h.projector.Day(snap, date, locationFilter(r)...)
	out := make([]CalendarDayResponse, 0, len(days))
	for _, d := range days {
		resp := CalendarDayResponse{
			Date:         availability.FormatDate(d.Date),
			Location:     d.LocationID,
			Slots:        make([]DaySlotResponse, len(d.Slots)),
			Appointments: make([]AppointmentResponse, len(d.Appointments)),
		}
		for i, s := range d.Slots {
			slot := DaySlotResponse{Time: availability.FormatClock(s.Minute), Occupied: s.Occupied()}
			if s.Appointment != nil {
				slot.AppointmentID = s.Appointment.ID
				slot.Patient = s.Appointment.Patient.Name
			}
			resp.Slots[i] = slot
		}
		for i, a := range d.Appointments {
			resp.Appointments[i] = toAppointmentResponse(a, h.catalog, h.svc.Modifiable(a, actor))
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}
