package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/store/memstore"
)

var (
	staff  = appointment.Actor{Subject: "staff-1", Email: "desk@clinic.test", Role: appointment.RoleStaff}
	client = appointment.Actor{Subject: "client-1", Email: "ana@example.com", Name: "Ana", Role: appointment.RoleClient}

	// Tuesdays.
	jan14 = time.Date(2025, time.January, 14, 0, 0, 0, 0, time.UTC)
	jan21 = time.Date(2025, time.January, 21, 0, 0, 0, 0, time.UTC)
)

// fakeStore wraps the memory store and lets a test fail chosen cancels.
type fakeStore struct {
	*memstore.Store

	mu        sync.Mutex
	failFor   map[string]error
	failNext  error
	calls     []string
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{Store: memstore.New(memstore.DefaultServices()...), failFor: map[string]error{}}
}

func (f *fakeStore) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeStore) CreateAppointment(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error) {
	f.record("create")
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.Store.CreateAppointment(ctx, req)
}

func (f *fakeStore) CancelAppointment(ctx context.Context, req appointment.CancelRequest) (*appointment.Appointment, error) {
	f.record("cancel:" + req.ID)
	f.mu.Lock()
	err := f.failFor[req.ID]
	if err == nil && req.ReplacedBy == "" && f.failNext != nil {
		err = f.failNext
	}
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.CancelAppointment(ctx, req)
}

func (f *fakeStore) PatchAppointment(ctx context.Context, id string, p appointment.Patch) (*appointment.Appointment, error) {
	f.record("patch:" + id)
	return f.Store.PatchAppointment(ctx, id, p)
}

func (f *fakeStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newService(store appointment.Store, now time.Time) *Service {
	catalog := availability.DefaultCatalog(time.UTC)
	return NewService(store, catalog, appointment.NewPolicy(time.UTC), WithClock(func() time.Time { return now }))
}

func seed(t *testing.T, s *memstore.Store, day time.Time, minute int, status appointment.Status, email string) appointment.Appointment {
	t.Helper()
	a, err := s.CreateAppointment(context.Background(), appointment.CreateRequest{
		LocationID:  "correa",
		ServiceID:   "consulta",
		Date:        day,
		StartMinute: minute,
		Duration:    30,
		Status:      status,
		Patient:     appointment.Contact{Name: "Ana", Email: email},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return *a
}

func TestCreateValidatesSlot(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, jan14.Add(-72*time.Hour))
	ctx := context.Background()

	wednesday := jan14.AddDate(0, 0, 1)
	_, err := svc.Create(ctx, client, BookingRequest{LocationID: "correa", ServiceID: "consulta", Date: wednesday, StartMinute: 600})
	if !errors.Is(err, appointment.ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
	if len(store.Calls()) != 0 {
		t.Fatalf("invalid slot should not reach the store, calls: %v", store.Calls())
	}

	a, err := svc.Create(ctx, client, BookingRequest{LocationID: "correa", ServiceID: "consulta", Date: jan14, StartMinute: 600})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != appointment.StatusPending || a.Patient.Email != client.Email {
		t.Fatalf("unexpected appointment %+v", a)
	}

	_, err = svc.Create(ctx, staff, BookingRequest{LocationID: "correa", ServiceID: "consulta", Date: jan14, StartMinute: 600, Patient: appointment.Contact{Name: "Bob", Email: "bob@example.com"}})
	if !errors.Is(err, appointment.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestCreateUnknownServiceAndEmptyCatalog(t *testing.T) {
	ctx := context.Background()
	svc := newService(newFakeStore(), jan14.Add(-72*time.Hour))
	if _, err := svc.Create(ctx, client, BookingRequest{LocationID: "correa", ServiceID: "massage", Date: jan14, StartMinute: 600}); !errors.Is(err, appointment.ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}

	empty := newService(memstore.New(), jan14.Add(-72*time.Hour))
	if _, err := empty.Services(ctx); !errors.Is(err, appointment.ErrNoServices) {
		t.Fatalf("expected ErrNoServices, got %v", err)
	}
}

func TestClientCannotBookForSomeoneElse(t *testing.T) {
	svc := newService(newFakeStore(), jan14.Add(-72*time.Hour))
	_, err := svc.Create(context.Background(), client, BookingRequest{
		LocationID: "correa", ServiceID: "consulta", Date: jan14, StartMinute: 600,
		Patient: appointment.Contact{Email: "bob@example.com"},
	})
	if !errors.Is(err, appointment.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAvailableSlotsExcludesActiveAppointments(t *testing.T) {
	store := newFakeStore()
	seed(t, store.Store, jan14, 420, appointment.StatusConfirmed, "a@example.com")
	seed(t, store.Store, jan14, 450, appointment.StatusPending, "b@example.com")
	c := seed(t, store.Store, jan14, 480, appointment.StatusPending, "c@example.com")
	if _, err := store.Store.CancelAppointment(context.Background(), appointment.CancelRequest{ID: c.ID}); err != nil {
		t.Fatal(err)
	}

	svc := newService(store, jan14.Add(-72*time.Hour))
	free, err := svc.AvailableSlots(context.Background(), "correa", jan14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(free) != 16 || free[0] != 480 {
		t.Fatalf("expected 16 free slots starting 08:00, got %v", free)
	}
}

// A client inside the 48h window is refused before any store call.
func TestCancelInsideWindowNeverReachesStore(t *testing.T) {
	store := newFakeStore()
	a := seed(t, store.Store, jan14, 600, appointment.StatusConfirmed, client.Email)
	start := time.Date(2025, time.January, 14, 10, 0, 0, 0, time.UTC)
	svc := newService(store, start.Add(-30*time.Hour))

	_, err := svc.Cancel(context.Background(), client, a, "")
	if !errors.Is(err, appointment.ErrModificationWindowClosed) {
		t.Fatalf("expected ErrModificationWindowClosed, got %v", err)
	}
	if calls := store.Calls(); len(calls) != 0 {
		t.Fatalf("store should not be called, got %v", calls)
	}

	// Staff bypass the window.
	got, err := svc.Cancel(context.Background(), staff, a, "")
	if err != nil || got.Status != appointment.StatusCancelled {
		t.Fatalf("staff cancel: %+v %v", got, err)
	}
	if got.CancellationReason != "cancelled by staff" {
		t.Errorf("reason = %q", got.CancellationReason)
	}
}

func TestCancelIdempotentAndTerminal(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, jan14.Add(-72*time.Hour))
	ctx := context.Background()

	cancelled := appointment.Appointment{ID: "x", Status: appointment.StatusCancelled, Date: jan14, StartMinute: 600, Patient: appointment.Contact{Email: client.Email}}
	got, err := svc.Cancel(ctx, client, cancelled, "")
	if err != nil || got.Status != appointment.StatusCancelled {
		t.Fatalf("cancel of cancelled should be a no-op, got %+v %v", got, err)
	}
	if len(store.Calls()) != 0 {
		t.Fatalf("no-op cancel touched the store: %v", store.Calls())
	}

	completed := cancelled
	completed.Status = appointment.StatusCompleted
	if _, err := svc.Cancel(ctx, staff, completed, ""); !errors.Is(err, appointment.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestCancelOtherPatientsAppointment(t *testing.T) {
	store := newFakeStore()
	a := seed(t, store.Store, jan14, 600, appointment.StatusConfirmed, "bob@example.com")
	svc := newService(store, jan14.Add(-72*time.Hour))
	if _, err := svc.Cancel(context.Background(), client, a, ""); !errors.Is(err, appointment.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestConfirmCompleteNoShow(t *testing.T) {
	store := newFakeStore()
	a := seed(t, store.Store, jan14, 600, appointment.StatusPending, client.Email)
	ctx := context.Background()

	before := newService(store, jan14.Add(-time.Hour))
	if _, err := before.Confirm(ctx, client, a); !errors.Is(err, appointment.ErrUnauthorized) {
		t.Fatalf("client confirm: expected ErrUnauthorized, got %v", err)
	}
	confirmed, err := before.Confirm(ctx, staff, a)
	if err != nil || confirmed.Status != appointment.StatusConfirmed {
		t.Fatalf("confirm: %+v %v", confirmed, err)
	}
	if _, err := before.Complete(ctx, staff, *confirmed); !errors.Is(err, appointment.ErrNotStarted) {
		t.Fatalf("early complete: expected ErrNotStarted, got %v", err)
	}

	after := newService(store, jan14.Add(11*time.Hour))
	done, err := after.Complete(ctx, staff, *confirmed)
	if err != nil || done.Status != appointment.StatusCompleted {
		t.Fatalf("complete: %+v %v", done, err)
	}
	if _, err := after.MarkNoShow(ctx, staff, *done); !errors.Is(err, appointment.ErrAlreadyTerminal) {
		t.Fatalf("no-show after complete: expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestUpdateMovesAndValidates(t *testing.T) {
	store := newFakeStore()
	a := seed(t, store.Store, jan14, 600, appointment.StatusPending, client.Email)
	svc := newService(store, jan14.Add(-72*time.Hour))
	ctx := context.Background()

	bad := 605
	if _, err := svc.Update(ctx, staff, a, appointment.Patch{StartMinute: &bad}); !errors.Is(err, appointment.ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
	if _, err := svc.Update(ctx, client, a, appointment.Patch{StartMinute: &bad}); !errors.Is(err, appointment.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	rescheduled := appointment.StatusRescheduled
	if _, err := svc.Update(ctx, staff, a, appointment.Patch{Status: &rescheduled}); !errors.Is(err, appointment.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	next := 660
	confirmed := appointment.StatusConfirmed
	got, err := svc.Update(ctx, staff, a, appointment.Patch{StartMinute: &next, Status: &confirmed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StartMinute != 660 || got.Status != appointment.StatusConfirmed {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestSnapshotGenerationsIncrease(t *testing.T) {
	svc := newService(newFakeStore(), jan14)
	a, _ := svc.Snapshot(context.Background(), client)
	b, _ := svc.Snapshot(context.Background(), client)
	if b.Generation <= a.Generation {
		t.Fatalf("generation did not increase: %d then %d", a.Generation, b.Generation)
	}
	if _, err := svc.Snapshot(context.Background(), appointment.Actor{}); !errors.Is(err, appointment.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
