// Package scheduling applies the clinic's booking rules on top of an
// appointment store.
package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type Service struct {
	store   appointment.Store
	catalog *availability.Catalog
	policy  appointment.Policy
	auditor appointment.Auditor
	log     zerolog.Logger
	now     func() time.Time
	gen     generation
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithAuditor records saga events somewhere other than the store.
func WithAuditor(a appointment.Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func NewService(store appointment.Store, catalog *availability.Catalog, policy appointment.Policy, opts ...Option) *Service {
	s := &Service{
		store:   store,
		catalog: catalog,
		policy:  policy,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	if a, ok := store.(appointment.Auditor); ok {
		s.auditor = a
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Catalog() *availability.Catalog { return s.catalog }

func (s *Service) Policy() appointment.Policy { return s.policy }

func (s *Service) Now() time.Time { return s.now() }

// BookingRequest asks for a new appointment on a slot.
type BookingRequest struct {
	LocationID  string
	ServiceID   string
	Date        time.Time
	StartMinute int
	Patient     appointment.Contact
	Notes       string
}

// Slot identifies a reschedule target.
type Slot struct {
	LocationID  string
	Date        time.Time
	StartMinute int
}

// Services lists the bookable services.
func (s *Service) Services(ctx context.Context) ([]appointment.Service, error) {
	services, err := s.store.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	if len(services) == 0 {
		return nil, appointment.ErrNoServices
	}
	return services, nil
}

// Snapshot loads every appointment visible to the actor.
func (s *Service) Snapshot(ctx context.Context, actor appointment.Actor) (appointment.Snapshot, error) {
	if actor.Role == "" {
		return appointment.Snapshot{}, appointment.ErrUnauthenticated
	}
	appts, err := s.store.ListAppointments(ctx, actor.Scope())
	if err != nil {
		return appointment.Snapshot{}, fmt.Errorf("list appointments: %w", err)
	}
	return appointment.NewSnapshot(s.gen.next(), s.now(), appts), nil
}

// Appointment loads one record the actor may see.
func (s *Service) Appointment(ctx context.Context, actor appointment.Actor, id string) (*appointment.Appointment, error) {
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	if err := s.policy.Authorize(*a, actor); err != nil {
		return nil, err
	}
	return a, nil
}

// AvailableSlots lists the slots of a day not covered by an active
// appointment. When the store refuses a full listing to this caller, every
// generated slot is offered and the store arbitrates at booking time.
func (s *Service) AvailableSlots(ctx context.Context, locationID string, date time.Time) ([]int, error) {
	if _, err := s.catalog.Location(locationID); err != nil {
		return nil, err
	}
	slots := s.catalog.SlotsFor(locationID, date)
	if len(slots) == 0 {
		return slots, nil
	}
	appts, err := s.store.ListAppointments(ctx, appointment.ScopeAll())
	if err != nil {
		if errors.Is(err, appointment.ErrUnauthorized) {
			return slots, nil
		}
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return FreeSlots(slots, appts, locationID, date), nil
}

// FreeSlots removes slots covered by an active appointment at the location.
func FreeSlots(slots []int, appts []appointment.Appointment, locationID string, date time.Time) []int {
	free := make([]int, 0, len(slots))
	for _, m := range slots {
		taken := false
		for _, a := range appts {
			if a.IsActive() && a.LocationID == locationID && a.OnDay(date) && a.Covers(m) {
				taken = true
				break
			}
		}
		if !taken {
			free = append(free, m)
		}
	}
	return free
}

// Create books a new appointment.
func (s *Service) Create(ctx context.Context, actor appointment.Actor, req BookingRequest) (*appointment.Appointment, error) {
	if actor.Role == "" {
		return nil, appointment.ErrUnauthenticated
	}
	if !actor.IsStaff() {
		if req.Patient.Email == "" {
			req.Patient.Email = actor.Email
		}
		if req.Patient.Name == "" {
			req.Patient.Name = actor.Name
		}
		if !strings.EqualFold(req.Patient.Email, actor.Email) {
			return nil, appointment.ErrUnauthorized
		}
	}

	svc, err := s.resolveService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSlot(actor, req.LocationID, req.Date, req.StartMinute, svc.Minutes()); err != nil {
		return nil, err
	}

	created, err := s.store.CreateAppointment(ctx, appointment.CreateRequest{
		LocationID:  req.LocationID,
		ServiceID:   svc.ID,
		Date:        availability.Civil(req.Date),
		StartMinute: req.StartMinute,
		Duration:    svc.Minutes(),
		Status:      s.policy.InitialStatus,
		Patient:     req.Patient,
		Notes:       req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	if created.ServiceName == "" {
		created.ServiceName = svc.Name
	}

	s.log.Info().
		Str("appointment_id", created.ID).
		Str("location", created.LocationID).
		Str("date", availability.FormatDate(created.Date)).
		Str("time", availability.FormatClock(created.StartMinute)).
		Str("actor", actor.Subject).
		Msg("appointment created")
	return created, nil
}

// Cancel closes an appointment. Cancelling a record that is already
// cancelled or rescheduled succeeds without touching the store.
func (s *Service) Cancel(ctx context.Context, actor appointment.Actor, a appointment.Appointment, reason string) (*appointment.Appointment, error) {
	if err := s.policy.Authorize(a, actor); err != nil {
		return nil, err
	}
	if a.Status == appointment.StatusCancelled || a.Status == appointment.StatusRescheduled {
		return &a, nil
	}
	if _, err := s.policy.Transition(a, appointment.EventCancel, actor, s.now()); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = defaultReason(actor, "cancelled")
	}

	updated, err := s.store.CancelAppointment(ctx, appointment.CancelRequest{ID: a.ID, Reason: reason})
	if err != nil {
		return nil, fmt.Errorf("cancel appointment %s: %w", a.ID, err)
	}
	s.log.Info().
		Str("appointment_id", a.ID).
		Str("actor", actor.Subject).
		Str("reason", reason).
		Msg("appointment cancelled")
	return updated, nil
}

// Confirm moves a pending appointment to confirmed. Staff only.
func (s *Service) Confirm(ctx context.Context, actor appointment.Actor, a appointment.Appointment) (*appointment.Appointment, error) {
	return s.advance(ctx, actor, a, appointment.EventConfirm)
}

// Complete marks a confirmed appointment that has started as attended.
func (s *Service) Complete(ctx context.Context, actor appointment.Actor, a appointment.Appointment) (*appointment.Appointment, error) {
	return s.advance(ctx, actor, a, appointment.EventComplete)
}

// MarkNoShow marks a confirmed appointment that has started as missed.
func (s *Service) MarkNoShow(ctx context.Context, actor appointment.Actor, a appointment.Appointment) (*appointment.Appointment, error) {
	return s.advance(ctx, actor, a, appointment.EventNoShow)
}

func (s *Service) advance(ctx context.Context, actor appointment.Actor, a appointment.Appointment, ev appointment.Event) (*appointment.Appointment, error) {
	if actor.Role == "" {
		return nil, appointment.ErrUnauthenticated
	}
	target, err := s.policy.Transition(a, ev, actor, s.now())
	if err != nil {
		return nil, err
	}
	updated, err := s.store.PatchAppointment(ctx, a.ID, appointment.Patch{Status: &target})
	if err != nil {
		return nil, fmt.Errorf("%s appointment %s: %w", ev, a.ID, err)
	}
	s.log.Info().
		Str("appointment_id", a.ID).
		Str("from", string(a.Status)).
		Str("to", string(target)).
		Str("actor", actor.Subject).
		Msg("appointment status changed")
	return updated, nil
}

// Update applies a staff patch of date, time and status. Moving an active
// appointment re-validates the target slot; a status change must be a legal
// transition.
func (s *Service) Update(ctx context.Context, actor appointment.Actor, a appointment.Appointment, patch appointment.Patch) (*appointment.Appointment, error) {
	if actor.Role == "" {
		return nil, appointment.ErrUnauthenticated
	}
	if !actor.IsStaff() {
		return nil, appointment.ErrUnauthorized
	}
	if patch.Empty() {
		return &a, nil
	}
	if a.Status.IsTerminal() {
		return nil, appointment.ErrAlreadyTerminal
	}

	if patch.Status != nil && *patch.Status != a.Status {
		ev, ok := appointment.EventFor(*patch.Status)
		if !ok {
			return nil, fmt.Errorf("%w: %s -> %s", appointment.ErrInvalidTransition, a.Status, *patch.Status)
		}
		if _, err := s.policy.Transition(a, ev, actor, s.now()); err != nil {
			return nil, err
		}
	} else {
		patch.Status = nil
	}

	if patch.Date != nil {
		d := availability.Civil(*patch.Date)
		patch.Date = &d
	}
	moved := patch.Apply(a)
	if patch.Date != nil || patch.StartMinute != nil {
		if err := s.checkSlot(actor, moved.LocationID, moved.Date, moved.StartMinute, moved.Minutes()); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.PatchAppointment(ctx, a.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("update appointment %s: %w", a.ID, err)
	}
	s.log.Info().Str("appointment_id", a.ID).Str("actor", actor.Subject).Msg("appointment updated")
	return updated, nil
}

// Modifiable reports whether the actor could cancel or reschedule now.
func (s *Service) Modifiable(a appointment.Appointment, actor appointment.Actor) bool {
	return s.policy.Authorize(a, actor) == nil && s.policy.CanModify(a, actor, s.now()) == nil
}

func (s *Service) resolveService(ctx context.Context, id string) (appointment.Service, error) {
	services, err := s.Services(ctx)
	if err != nil {
		return appointment.Service{}, err
	}
	for _, svc := range services {
		if svc.ID == id {
			return svc, nil
		}
	}
	return appointment.Service{}, fmt.Errorf("%w: %q", appointment.ErrUnknownService, id)
}

// checkSlot validates a start against the catalog. Clients cannot book in the
// past.
func (s *Service) checkSlot(actor appointment.Actor, locationID string, date time.Time, minute, duration int) error {
	if _, err := s.catalog.Location(locationID); err != nil {
		return fmt.Errorf("%w: %v", appointment.ErrInvalidSlot, err)
	}
	if !s.catalog.Fits(locationID, date, minute, duration) {
		return fmt.Errorf("%w: %s %s %s", appointment.ErrInvalidSlot,
			locationID, availability.FormatDate(date), availability.FormatClock(minute))
	}
	if !actor.IsStaff() && !s.catalog.StartAt(date, minute).After(s.now()) {
		return fmt.Errorf("%w: slot is in the past", appointment.ErrInvalidSlot)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, id, eventType string, payload map[string]any) {
	if s.auditor == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal audit payload")
		return
	}
	if err := s.auditor.InsertEvent(ctx, appointment.EventLog{
		EventType:     eventType,
		AppointmentID: id,
		Payload:       b,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Str("appointment_id", id).Msg("record audit event")
	}
}

func defaultReason(actor appointment.Actor, verb string) string {
	if actor.IsStaff() {
		return verb + " by staff"
	}
	return verb + " by client"
}
