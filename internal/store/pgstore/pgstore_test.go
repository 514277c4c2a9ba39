package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/db"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatal("wrapped 23505 should be detected")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) || isUniqueViolation(errors.New("x")) {
		t.Fatal("other errors are not unique violations")
	}
}

func TestLockContentionIsRetryable(t *testing.T) {
	err := lockError(redisclient.ErrLockNotAcquired)
	if !errors.Is(err, appointment.ErrSlotBeingBooked) {
		t.Fatalf("expected ErrSlotBeingBooked, got %v", err)
	}
	if errors.Is(err, appointment.ErrSlotUnavailable) {
		t.Fatal("lock contention must not read as a taken slot")
	}
	if got := lockError(appointment.ErrSlotUnavailable); !errors.Is(got, appointment.ErrSlotUnavailable) {
		t.Fatalf("other errors pass through, got %v", got)
	}
	if lockError(nil) != nil {
		t.Fatal("nil stays nil")
	}
}

// newTestStore connects to POSTGRES_TEST_DSN and skips when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `TRUNCATE appointments, event_logs`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	s := New(pool, nil)
	if err := s.UpsertServices(ctx, []appointment.Service{{ID: "consulta", Name: "Consulta general", Duration: 30}}); err != nil {
		t.Fatalf("services: %v", err)
	}
	return s
}

func TestPostgresBookingLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2030, 1, 8, 0, 0, 0, 0, time.UTC)

	req := appointment.CreateRequest{
		LocationID: "correa", ServiceID: "consulta", Date: day, StartMinute: 420, Duration: 30,
		Status: appointment.StatusPending, Patient: appointment.Contact{Name: "Ana", Email: "ana@example.com"},
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CreateAppointment(ctx, req); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, appointment.ErrSlotUnavailable) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one booking, got %d", wins)
	}

	list, err := s.ListAppointments(ctx, appointment.ScopeMine("ANA@example.com"))
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %v", list, err)
	}
	a := list[0]
	if a.ServiceName != "Consulta general" || !a.Date.Equal(day) {
		t.Fatalf("unexpected record %+v", a)
	}

	got, err := s.CancelAppointment(ctx, appointment.CancelRequest{ID: a.ID, Reason: "r", ReplacedBy: "other"})
	if err != nil || got.Status != appointment.StatusRescheduled {
		t.Fatalf("cancel: %+v %v", got, err)
	}
	again, err := s.CancelAppointment(ctx, appointment.CancelRequest{ID: a.ID})
	if err != nil || again.Status != appointment.StatusRescheduled {
		t.Fatalf("second cancel should be a no-op: %+v %v", again, err)
	}
	if _, err := s.CancelAppointment(ctx, appointment.CancelRequest{ID: "missing"}); !errors.Is(err, appointment.ErrAppointmentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresOpenReconciliations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertEvent(ctx, appointment.EventLog{EventType: appointment.EventReschedulePartial, AppointmentID: "a1", Payload: []byte(`{}`)}); err != nil {
		t.Fatal(err)
	}
	open, err := s.OpenReconciliations(ctx)
	if err != nil || len(open) != 1 {
		t.Fatalf("open: %v %v", open, err)
	}
	if err := s.InsertEvent(ctx, appointment.EventLog{EventType: appointment.EventReconciled, AppointmentID: "a1"}); err != nil {
		t.Fatal(err)
	}
	open, _ = s.OpenReconciliations(ctx)
	if len(open) != 0 {
		t.Fatalf("expected none open, got %v", open)
	}
}
