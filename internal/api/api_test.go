package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
	"github.com/hackgods/clinic-scheduling/internal/store/memstore"
)

// Friday before the Tuesday the tests book on.
var now = time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)

// failingCancels makes every cancel fail once armed.
type failingCancels struct {
	*memstore.Store
	armed bool
}

func (f *failingCancels) CancelAppointment(ctx context.Context, req appointment.CancelRequest) (*appointment.Appointment, error) {
	if f.armed {
		return nil, errors.New("store offline")
	}
	return f.Store.CancelAppointment(ctx, req)
}

func newTestRouter(t *testing.T, store appointment.Store, tokens *auth.Issuer, at time.Time, deps ...Dependency) http.Handler {
	t.Helper()
	svc := scheduling.NewService(store, availability.DefaultCatalog(time.UTC), appointment.NewPolicy(time.UTC),
		scheduling.WithClock(func() time.Time { return at }))
	return NewRouter(RouterConfig{
		Service:      svc,
		Tokens:       tokens,
		Dependencies: deps,
		Logger:       zerolog.Nop(),
		Env:          "test",
		Version:      "test",
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func booking(clock string) CreateAppointmentRequest {
	return CreateAppointmentRequest{
		Location:  "correa",
		ServiceID: "consulta",
		Date:      "2025-01-14",
		Time:      clock,
		Patient:   appointment.Contact{Name: "Ana", Email: "ana@example.com"},
	}
}

func TestCreateThenConflict(t *testing.T) {
	h := newTestRouter(t, memstore.New(memstore.DefaultServices()...), nil, now)

	rec := do(t, h, http.MethodPost, "/v1/appointments", booking("09:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	created := decodeBody[AppointmentResponse](t, rec)
	if created.Status != "pending" || created.Time != "09:00" || created.EndTime != "09:30" {
		t.Errorf("unexpected appointment %+v", created)
	}
	if created.LocationLabel == "" {
		t.Error("location label missing")
	}

	rec = do(t, h, http.MethodPost, "/v1/appointments", booking("09:00"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("second create status = %d", rec.Code)
	}
	if got := decodeBody[ErrorResponse](t, rec).Error; got != "slot_unavailable" {
		t.Errorf("error = %q", got)
	}

	rec = do(t, h, http.MethodGet, "/v1/locations/correa/slots?date=2025-01-14", nil)
	slots := decodeBody[SlotsResponse](t, rec)
	if len(slots.Slots) != 18 {
		t.Fatalf("slots = %d, want 18", len(slots.Slots))
	}
	for _, s := range slots.Slots {
		if s.Time == "09:00" && s.Available {
			t.Error("09:00 still reported available")
		}
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	h := newTestRouter(t, memstore.New(memstore.DefaultServices()...), nil, now)

	tests := []struct {
		name   string
		req    CreateAppointmentRequest
		status int
		code   string
	}{
		{"bad date", CreateAppointmentRequest{Location: "correa", ServiceID: "consulta", Date: "14/01/2025", Time: "09:00"}, http.StatusBadRequest, "invalid_date"},
		{"off grid", booking("09:15"), http.StatusUnprocessableEntity, "invalid_slot"},
		{"after close", booking("16:00"), http.StatusUnprocessableEntity, "invalid_slot"},
		{"unknown service", CreateAppointmentRequest{Location: "correa", ServiceID: "nope", Date: "2025-01-14", Time: "09:00"}, http.StatusUnprocessableEntity, "unknown_service"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/appointments", tt.req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if got := decodeBody[ErrorResponse](t, rec).Error; got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestClientCancelInsideWindow(t *testing.T) {
	store := memstore.New(memstore.DefaultServices()...)
	tokens := auth.NewIssuer("secret", "clinic-test", time.Hour)
	// Monday 12:00, one day before the appointment.
	h := newTestRouter(t, store, tokens, time.Date(2025, time.January, 13, 12, 0, 0, 0, time.UTC))

	a, err := store.CreateAppointment(context.Background(), appointment.CreateRequest{
		LocationID: "correa", ServiceID: "consulta", Date: time.Date(2025, time.January, 14, 0, 0, 0, 0, time.UTC),
		StartMinute: 9 * 60, Duration: 30, Status: appointment.StatusPending,
		Patient: appointment.Contact{Name: "Ana", Email: "ana@example.com"},
	})
	if err != nil {
		t.Fatal(err)
	}

	token, err := tokens.Issue(appointment.Actor{Subject: "c1", Email: "ana@example.com", Role: appointment.RoleClient})
	if err != nil {
		t.Fatal(err)
	}

	rec := do(t, h, http.MethodGet, "/v1/appointments/"+a.ID, nil, "Authorization", "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if decodeBody[AppointmentResponse](t, rec).Modifiable {
		t.Error("appointment inside the window reported modifiable")
	}

	rec = do(t, h, http.MethodPost, "/v1/appointments/"+a.ID+"/cancel", CancelAppointmentRequest{Reason: "sick"},
		"Authorization", "Bearer "+token)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("cancel status = %d, body %s", rec.Code, rec.Body)
	}
	if got := decodeBody[ErrorResponse](t, rec).Error; got != "modification_window_closed" {
		t.Errorf("code = %q", got)
	}

	stored, _ := store.GetAppointment(context.Background(), a.ID)
	if stored.Status != appointment.StatusPending {
		t.Errorf("stored status = %s", stored.Status)
	}
}

func TestRescheduleEndpoint(t *testing.T) {
	h := newTestRouter(t, memstore.New(memstore.DefaultServices()...), nil, now)

	created := decodeBody[AppointmentResponse](t, do(t, h, http.MethodPost, "/v1/appointments", booking("09:00")))

	rec := do(t, h, http.MethodPost, "/v1/appointments/"+created.ID+"/reschedule",
		RescheduleAppointmentRequest{Date: "2025-01-21", Time: "10:00"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reschedule status = %d, body %s", rec.Code, rec.Body)
	}
	replacement := decodeBody[AppointmentResponse](t, rec)
	if replacement.Date != "2025-01-21" || replacement.Time != "10:00" || replacement.Location != "correa" {
		t.Errorf("replacement = %+v", replacement)
	}

	old := decodeBody[AppointmentResponse](t, do(t, h, http.MethodGet, "/v1/appointments/"+created.ID, nil))
	if old.Status != "rescheduled" || old.ReplacedBy != replacement.ID {
		t.Errorf("source = %+v", old)
	}
}

func TestReschedulePartialFailure(t *testing.T) {
	store := &failingCancels{Store: memstore.New(memstore.DefaultServices()...)}
	h := newTestRouter(t, store, nil, now)

	created := decodeBody[AppointmentResponse](t, do(t, h, http.MethodPost, "/v1/appointments", booking("09:00")))
	store.armed = true

	rec := do(t, h, http.MethodPost, "/v1/appointments/"+created.ID+"/reschedule",
		RescheduleAppointmentRequest{Date: "2025-01-21", Time: "10:00"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	resp := decodeBody[ErrorResponse](t, rec)
	if resp.Error != "partial_reschedule_failure" || resp.Severity != "critical" || !resp.Persistent {
		t.Errorf("response = %+v", resp)
	}
	if resp.AppointmentID != created.ID || resp.ReplacementID == "" {
		t.Errorf("ids = %q / %q", resp.AppointmentID, resp.ReplacementID)
	}
	if len(store.Events(appointment.EventReschedulePartial)) != 1 {
		t.Error("partial failure not audited")
	}
}

func TestListAndCalendar(t *testing.T) {
	h := newTestRouter(t, memstore.New(memstore.DefaultServices()...), nil, now)
	for _, clock := range []string{"09:00", "10:00", "11:00"} {
		if rec := do(t, h, http.MethodPost, "/v1/appointments", booking(clock)); rec.Code != http.StatusCreated {
			t.Fatalf("create %s: %d", clock, rec.Code)
		}
	}

	page := decodeBody[PageResponse[AppointmentResponse]](t,
		do(t, h, http.MethodGet, "/v1/appointments?sort=date_desc&page_size=2", nil))
	if page.Total != 3 || len(page.Items) != 2 || !page.HasNext {
		t.Fatalf("page = %+v", page)
	}
	if page.Items[0].Time != "11:00" {
		t.Errorf("first item = %s", page.Items[0].Time)
	}

	empty := decodeBody[PageResponse[AppointmentResponse]](t,
		do(t, h, http.MethodGet, "/v1/appointments?status=cancelado", nil))
	if empty.Total != 0 {
		t.Errorf("cancelled filter total = %d", empty.Total)
	}

	month := decodeBody[CalendarMonthResponse](t, do(t, h, http.MethodGet, "/v1/calendar/month?year=2025&month=1", nil))
	if len(month.Weeks) != 6 || month.Weeks[0][0].Date != "2024-12-29" {
		t.Fatalf("grid starts %v", month.Weeks)
	}
	// 2025-01-14 is row 2, Tuesday.
	if cell := month.Weeks[2][2]; cell.Date != "2025-01-14" || cell.Active != 3 || cell.TotalSlots == 0 {
		t.Errorf("cell = %+v", cell)
	}

	days := decodeBody[[]CalendarDayResponse](t, do(t, h, http.MethodGet, "/v1/calendar/day?date=2025-01-14&location=correa", nil))
	if len(days) != 1 || len(days[0].Appointments) != 3 {
		t.Fatalf("days = %+v", days)
	}
	occupied := 0
	for _, s := range days[0].Slots {
		if s.Occupied {
			occupied++
		}
	}
	if occupied != 3 {
		t.Errorf("occupied = %d", occupied)
	}
}

func TestAuthRequired(t *testing.T) {
	tokens := auth.NewIssuer("secret", "clinic-test", time.Hour)
	h := newTestRouter(t, memstore.New(memstore.DefaultServices()...), tokens, now)

	if rec := do(t, h, http.MethodGet, "/v1/appointments", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/appointments", nil, "Authorization", "Bearer garbage"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", rec.Code)
	}

	token, err := tokens.Issue(appointment.Actor{Subject: "c1", Email: "ana@example.com", Role: appointment.RoleClient})
	if err != nil {
		t.Fatal(err)
	}
	if rec := do(t, h, http.MethodGet, "/v1/appointments", nil, "Authorization", "Bearer "+token); rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d", rec.Code)
	}
}

func TestClientCannotConfirm(t *testing.T) {
	tokens := auth.NewIssuer("secret", "clinic-test", time.Hour)
	store := memstore.New(memstore.DefaultServices()...)
	h := newTestRouter(t, store, tokens, now)

	token, _ := tokens.Issue(appointment.Actor{Subject: "c1", Email: "ana@example.com", Name: "Ana", Role: appointment.RoleClient})
	rec := do(t, h, http.MethodPost, "/v1/appointments", booking("09:00"), "Authorization", "Bearer "+token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	id := decodeBody[AppointmentResponse](t, rec).ID

	rec = do(t, h, http.MethodPost, "/v1/appointments/"+id+"/confirm", nil, "Authorization", "Bearer "+token)
	if rec.Code != http.StatusForbidden {
		t.Errorf("confirm status = %d", rec.Code)
	}
}

func TestReadiness(t *testing.T) {
	down := func(context.Context) error { return errors.New("down") }
	up := func(context.Context) error { return nil }

	tests := []struct {
		name   string
		deps   []Dependency
		status int
		want   string
	}{
		{"all up", []Dependency{{Name: "store", Check: up}}, http.StatusOK, "ok"},
		{"optional down", []Dependency{{Name: "store", Check: up}, {Name: "redis", Check: down, Optional: true}}, http.StatusOK, "degraded"},
		{"required down", []Dependency{{Name: "store", Check: down}}, http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(t, memstore.New(memstore.DefaultServices()...), nil, now, tt.deps...)
			rec := do(t, h, http.MethodGet, "/health/ready", nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := decodeBody[ReadinessResponse](t, rec).Status; got != tt.want {
				t.Errorf("readiness = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestLogNamesActor(t *testing.T) {
	var buf bytes.Buffer
	tokens := auth.NewIssuer("secret", "clinic-test", time.Hour)
	svc := scheduling.NewService(memstore.New(memstore.DefaultServices()...), availability.DefaultCatalog(time.UTC),
		appointment.NewPolicy(time.UTC), scheduling.WithClock(func() time.Time { return now }))
	h := NewRouter(RouterConfig{Service: svc, Tokens: tokens, Logger: zerolog.New(&buf)})

	token, err := tokens.Issue(appointment.Actor{Subject: "client-42", Email: "ana@example.com", Role: appointment.RoleClient})
	if err != nil {
		t.Fatal(err)
	}
	if rec := do(t, h, http.MethodGet, "/v1/appointments", nil, "Authorization", "Bearer "+token); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var line struct {
		Actor  string `json:"actor"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("log line %q: %v", buf.String(), err)
	}
	if line.Actor != "client-42" || line.Status != http.StatusOK {
		t.Errorf("log line = %+v", line)
	}
}

func TestServiceErrorCodes(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("create: %w", appointment.ErrSlotBeingBooked), http.StatusConflict, "slot_being_booked"},
		{fmt.Errorf("create: %w", appointment.ErrSlotUnavailable), http.StatusConflict, "slot_unavailable"},
		{fmt.Errorf("%w: 24h", appointment.ErrModificationWindowClosed), http.StatusUnprocessableEntity, "modification_window_closed"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, tt.err)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := decodeBody[ErrorResponse](t, rec).Error; got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}
