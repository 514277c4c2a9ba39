package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

var (
	// ErrRescheduleFailed means the original appointment is still in place.
	ErrRescheduleFailed = errors.New("reschedule failed, the original appointment was kept")
	// ErrPartialReschedule means both appointments may be active and staff
	// must reconcile them by hand.
	ErrPartialReschedule = errors.New("reschedule left two active appointments, manual reconciliation required")
)

// finishTimeout bounds the steps that run after the replacement exists.
const finishTimeout = 10 * time.Second

type SagaStep string

const (
	StepValidate          SagaStep = "validate"
	StepCreateReplacement SagaStep = "create_replacement"
	StepCancelSource      SagaStep = "cancel_source"
	StepCompensate        SagaStep = "cancel_replacement"
	StepDone              SagaStep = "done"
)

// RescheduleError reports a reschedule that failed after a replacement was
// created. It matches ErrRescheduleFailed or ErrPartialReschedule.
type RescheduleError struct {
	SourceID      string
	ReplacementID string
	Cause         error
	Compensation  error
}

func (e *RescheduleError) Partial() bool { return e.Compensation != nil }

func (e *RescheduleError) Error() string {
	if e.Partial() {
		return fmt.Sprintf("%v (original %s, replacement %s): %v; rollback: %v",
			ErrPartialReschedule, e.SourceID, e.ReplacementID, e.Cause, e.Compensation)
	}
	return fmt.Sprintf("%v: %v", ErrRescheduleFailed, e.Cause)
}

func (e *RescheduleError) Unwrap() []error {
	if e.Partial() {
		return []error{ErrPartialReschedule, e.Cause, e.Compensation}
	}
	return []error{ErrRescheduleFailed, e.Cause}
}

type rescheduleSaga struct {
	svc         *Service
	actor       appointment.Actor
	source      appointment.Appointment
	target      Slot
	replacement *appointment.Appointment
	cause       error
}

// Reschedule moves an appointment to another slot by booking the replacement
// first and then closing the original. If the original cannot be closed the
// replacement is cancelled again.
func (s *Service) Reschedule(ctx context.Context, actor appointment.Actor, source appointment.Appointment, target Slot) (*appointment.Appointment, error) {
	g := &rescheduleSaga{svc: s, actor: actor, source: source, target: target}
	return g.run(ctx)
}

func (g *rescheduleSaga) run(ctx context.Context) (*appointment.Appointment, error) {
	step := StepValidate
	for {
		switch step {
		case StepValidate:
			if err := g.validate(); err != nil {
				return nil, err
			}
			step = StepCreateReplacement

		case StepCreateReplacement:
			if err := g.createReplacement(ctx); err != nil {
				return nil, err
			}
			// The replacement exists, so the caller giving up must not leave
			// the saga half way.
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
			defer cancel()
			step = StepCancelSource

		case StepCancelSource:
			if err := g.cancelSource(ctx); err != nil {
				g.cause = err
				step = StepCompensate
				continue
			}
			step = StepDone

		case StepCompensate:
			return nil, g.compensate(ctx)

		case StepDone:
			g.svc.log.Info().
				Str("appointment_id", g.source.ID).
				Str("replacement_id", g.replacement.ID).
				Str("actor", g.actor.Subject).
				Msg("appointment rescheduled")
			return g.replacement, nil
		}
	}
}

func (g *rescheduleSaga) validate() error {
	s := g.svc
	if err := s.policy.Authorize(g.source, g.actor); err != nil {
		return err
	}
	if _, err := s.policy.Transition(g.source, appointment.EventReschedule, g.actor, s.now()); err != nil {
		return err
	}
	if g.target.LocationID == "" {
		g.target.LocationID = g.source.LocationID
	}
	if g.target.LocationID == g.source.LocationID && g.source.OnDay(g.target.Date) && g.target.StartMinute == g.source.StartMinute {
		return fmt.Errorf("%w: target is the current slot", appointment.ErrInvalidSlot)
	}
	return s.checkSlot(g.actor, g.target.LocationID, g.target.Date, g.target.StartMinute, g.source.Minutes())
}

func (g *rescheduleSaga) createReplacement(ctx context.Context) error {
	s := g.svc
	created, err := s.store.CreateAppointment(ctx, appointment.CreateRequest{
		LocationID:  g.target.LocationID,
		ServiceID:   g.source.ServiceID,
		Date:        availability.Civil(g.target.Date),
		StartMinute: g.target.StartMinute,
		Duration:    g.source.Minutes(),
		Status:      s.policy.InitialStatus,
		Patient:     g.source.Patient,
		Notes:       g.source.Notes,
		Supersedes:  g.source.ID,
	})
	if err != nil {
		return fmt.Errorf("create replacement: %w", err)
	}
	if created.ServiceName == "" {
		created.ServiceName = g.source.ServiceName
	}
	g.replacement = created
	return nil
}

func (g *rescheduleSaga) cancelSource(ctx context.Context) error {
	_, err := g.svc.store.CancelAppointment(ctx, appointment.CancelRequest{
		ID:         g.source.ID,
		Reason:     defaultReason(g.actor, "rescheduled"),
		ReplacedBy: g.replacement.ID,
	})
	if err != nil {
		return fmt.Errorf("cancel original %s: %w", g.source.ID, err)
	}
	return nil
}

func (g *rescheduleSaga) compensate(ctx context.Context) error {
	s := g.svc
	rerr := &RescheduleError{
		SourceID:      g.source.ID,
		ReplacementID: g.replacement.ID,
		Cause:         g.cause,
	}

	_, err := s.store.CancelAppointment(ctx, appointment.CancelRequest{
		ID:     g.replacement.ID,
		Reason: "reschedule rolled back",
	})
	if err == nil {
		s.log.Warn().
			Err(g.cause).
			Str("appointment_id", g.source.ID).
			Str("replacement_id", g.replacement.ID).
			Msg("reschedule rolled back")
		return rerr
	}

	rerr.Compensation = err
	s.log.Error().
		Err(err).
		AnErr("cause", g.cause).
		Str("appointment_id", g.source.ID).
		Str("replacement_id", g.replacement.ID).
		Str("actor", g.actor.Subject).
		Msg("reschedule partially applied, both appointments may be active")
	s.audit(ctx, g.source.ID, appointment.EventReschedulePartial, map[string]any{
		"source_id":      g.source.ID,
		"replacement_id": g.replacement.ID,
		"cause":          g.cause.Error(),
		"rollback_error": err.Error(),
	})
	return rerr
}
