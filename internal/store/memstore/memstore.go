// Package memstore is a process-local appointment store used for development
// and tests.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

var (
	_ appointment.Store   = (*Store)(nil)
	_ appointment.Auditor = (*Store)(nil)
)

type Store struct {
	mu       sync.RWMutex
	services []appointment.Service
	records  map[string]appointment.Appointment
	events   []appointment.EventLog
	now      func() time.Time
}

func New(services ...appointment.Service) *Store {
	cp := make([]appointment.Service, len(services))
	copy(cp, services)
	return &Store{
		services: cp,
		records:  make(map[string]appointment.Appointment),
		now:      time.Now,
	}
}

// DefaultServices is the catalog a fresh development store starts with.
func DefaultServices() []appointment.Service {
	return []appointment.Service{
		{ID: "consulta", Name: "Consulta general", Duration: 30},
		{ID: "limpieza-facial", Name: "Limpieza facial", Duration: 60},
		{ID: "control", Name: "Control", Duration: 30},
	}
}

func (s *Store) ListServices(ctx context.Context) ([]appointment.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]appointment.Service, len(s.services))
	copy(out, s.services)
	return out, nil
}

func (s *Store) ListAppointments(ctx context.Context, scope appointment.Scope) ([]appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]appointment.Appointment, 0, len(s.records))
	for _, a := range s.records {
		if scope.Includes(a) {
			out = append(out, a)
		}
	}
	appointment.SortChronological(out)
	return out, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.records[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *Store) CreateAppointment(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cand := req.Candidate()
	if cand.Status == "" {
		cand.Status = appointment.StatusPending
	}
	if cand.Duration <= 0 {
		cand.Duration = appointment.DefaultDuration
	}
	if svc, ok := s.serviceLocked(cand.ServiceID); ok {
		cand.ServiceName = svc.Name
	}
	if cand.IsActive() {
		if err := s.checkFreeLocked(cand, req.Supersedes); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	cand.ID = uuid.NewString()
	cand.CreatedAt = now
	cand.UpdatedAt = now
	s.records[cand.ID] = cand
	s.appendEventLocked(appointment.EventAppointmentCreated, cand.ID, map[string]any{
		"location": cand.LocationID,
		"date":     cand.Date.Format("2006-01-02"),
		"minute":   cand.StartMinute,
	})
	return &cand, nil
}

func (s *Store) CancelAppointment(ctx context.Context, req appointment.CancelRequest) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.records[req.ID]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	switch a.Status {
	case appointment.StatusCancelled, appointment.StatusRescheduled:
		return &a, nil
	case appointment.StatusCompleted, appointment.StatusNoShow:
		return nil, appointment.ErrAlreadyTerminal
	}

	a.Status = req.TargetStatus()
	a.CancellationReason = req.Reason
	a.ReplacedBy = req.ReplacedBy
	a.UpdatedAt = s.now().UTC()
	s.records[a.ID] = a
	s.appendEventLocked(appointment.EventForStatus(a.Status), a.ID, map[string]any{
		"reason":      req.Reason,
		"replaced_by": req.ReplacedBy,
	})
	return &a, nil
}

func (s *Store) PatchAppointment(ctx context.Context, id string, patch appointment.Patch) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.records[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	next := patch.Apply(a)
	if next.IsActive() && (patch.Date != nil || patch.StartMinute != nil || !a.IsActive()) {
		if err := s.checkFreeLocked(next, id); err != nil {
			return nil, err
		}
	}
	next.UpdatedAt = s.now().UTC()
	s.records[id] = next
	s.appendEventLocked(appointment.EventForStatus(next.Status), id, map[string]any{
		"from": string(a.Status),
		"to":   string(next.Status),
	})
	return &next, nil
}

func (s *Store) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = int64(len(s.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}
	s.events = append(s.events, ev)
	return nil
}

// Events returns the audit log, optionally filtered by event type.
func (s *Store) Events(types ...string) []appointment.EventLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]appointment.EventLog, 0, len(s.events))
	for _, ev := range s.events {
		if len(types) == 0 || contains(types, ev.EventType) {
			out = append(out, ev)
		}
	}
	return out
}

// Put inserts or replaces a record verbatim. It bypasses conflict checks.
func (s *Store) Put(a appointment.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.records[a.ID] = a
}

func (s *Store) serviceLocked(id string) (appointment.Service, bool) {
	for _, svc := range s.services {
		if svc.ID == id {
			return svc, true
		}
	}
	return appointment.Service{}, false
}

func (s *Store) checkFreeLocked(cand appointment.Appointment, selfID string) error {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		other := s.records[id]
		if id == selfID || !other.IsActive() {
			continue
		}
		if cand.Overlaps(other) {
			return fmt.Errorf("%w: %s %s %02d:%02d", appointment.ErrSlotUnavailable,
				cand.LocationID, cand.Date.Format("2006-01-02"), cand.StartMinute/60, cand.StartMinute%60)
		}
	}
	return nil
}

func (s *Store) appendEventLocked(eventType, id string, payload map[string]any) {
	b, _ := json.Marshal(payload)
	s.events = append(s.events, appointment.EventLog{
		ID:            int64(len(s.events) + 1),
		EventType:     eventType,
		AppointmentID: id,
		Payload:       b,
		CreatedAt:     s.now().UTC(),
	})
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
