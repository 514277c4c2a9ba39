package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

var tuesday = time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)

func booking(minute, duration int, email string) appointment.CreateRequest {
	return appointment.CreateRequest{
		LocationID:  "correa",
		ServiceID:   "consulta",
		Date:        tuesday,
		StartMinute: minute,
		Duration:    duration,
		Status:      appointment.StatusPending,
		Patient:     appointment.Contact{Name: "Ana", Email: email},
	}
}

func TestCreateRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	s := New(DefaultServices()...)

	first, err := s.CreateAppointment(ctx, booking(600, 60, "ana@example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ServiceName != "Consulta general" {
		t.Errorf("service name not resolved: %q", first.ServiceName)
	}
	if _, err := s.CreateAppointment(ctx, booking(630, 30, "bob@example.com")); !errors.Is(err, appointment.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if _, err := s.CreateAppointment(ctx, booking(660, 30, "bob@example.com")); err != nil {
		t.Fatalf("adjacent slot should be free: %v", err)
	}
}

func TestCreateIgnoresSupersededAppointment(t *testing.T) {
	ctx := context.Background()
	s := New(DefaultServices()...)

	first, err := s.CreateAppointment(ctx, booking(600, 60, "ana@example.com"))
	if err != nil {
		t.Fatal(err)
	}
	moved := booking(630, 60, "ana@example.com")
	moved.Supersedes = first.ID
	if _, err := s.CreateAppointment(ctx, moved); err != nil {
		t.Fatalf("replacement overlapping its own source: %v", err)
	}
	other := booking(630, 30, "bob@example.com")
	other.Supersedes = first.ID
	if _, err := s.CreateAppointment(ctx, other); !errors.Is(err, appointment.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable against the replacement, got %v", err)
	}
}

func TestConcurrentCreatesAdmitOne(t *testing.T) {
	ctx := context.Background()
	s := New(DefaultServices()...)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CreateAppointment(ctx, booking(420, 30, "x@example.com")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one booking, got %d", wins)
	}
}

func TestCancelIsIdempotentAndFreesSlot(t *testing.T) {
	ctx := context.Background()
	s := New(DefaultServices()...)

	a, err := s.CreateAppointment(ctx, booking(420, 30, "ana@example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.CancelAppointment(ctx, appointment.CancelRequest{ID: a.ID, Reason: "travel"})
	if err != nil || got.Status != appointment.StatusCancelled {
		t.Fatalf("cancel: %+v %v", got, err)
	}
	again, err := s.CancelAppointment(ctx, appointment.CancelRequest{ID: a.ID, Reason: "again"})
	if err != nil || again.CancellationReason != "travel" {
		t.Fatalf("second cancel should be a no-op: %+v %v", again, err)
	}
	if _, err := s.CreateAppointment(ctx, booking(420, 30, "bob@example.com")); err != nil {
		t.Fatalf("slot should be free after cancel: %v", err)
	}
	if _, err := s.CancelAppointment(ctx, appointment.CancelRequest{ID: "missing"}); !errors.Is(err, appointment.ErrAppointmentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCancelWithReplacementMarksRescheduled(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, _ := s.CreateAppointment(ctx, booking(420, 30, "ana@example.com"))
	got, err := s.CancelAppointment(ctx, appointment.CancelRequest{ID: a.ID, ReplacedBy: "new-id"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != appointment.StatusRescheduled || got.ReplacedBy != "new-id" {
		t.Fatalf("unexpected record %+v", got)
	}
	if n := len(s.Events(appointment.EventAppointmentRescheduled)); n != 1 {
		t.Fatalf("expected one rescheduled event, got %d", n)
	}
}

func TestListScope(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.CreateAppointment(ctx, booking(420, 30, "ana@example.com"))
	_, _ = s.CreateAppointment(ctx, booking(450, 30, "bob@example.com"))

	mine, _ := s.ListAppointments(ctx, appointment.ScopeMine("ANA@example.com"))
	if len(mine) != 1 {
		t.Fatalf("expected 1 record for ana, got %d", len(mine))
	}
	all, _ := s.ListAppointments(ctx, appointment.ScopeAll())
	if len(all) != 2 || all[0].StartMinute != 420 {
		t.Fatalf("unexpected listing %+v", all)
	}
}

func TestPatchMoveChecksConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, _ := s.CreateAppointment(ctx, booking(420, 30, "ana@example.com"))
	_, _ = s.CreateAppointment(ctx, booking(480, 30, "bob@example.com"))

	taken := 480
	if _, err := s.PatchAppointment(ctx, a.ID, appointment.Patch{StartMinute: &taken}); !errors.Is(err, appointment.ErrSlotUnavailable) {
		t.Fatalf("expected conflict, got %v", err)
	}
	free := 450
	got, err := s.PatchAppointment(ctx, a.ID, appointment.Patch{StartMinute: &free})
	if err != nil || got.StartMinute != 450 {
		t.Fatalf("move: %+v %v", got, err)
	}
}
