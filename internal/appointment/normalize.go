package appointment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RawRecord is an appointment as an external system sends it, decoded from
// JSON without a fixed schema.
type RawRecord map[string]any

// Field aliases, in priority order. Dotted names address nested objects.
var (
	idFields          = []string{"id", "_id", "appointment_id", "turno_id"}
	locationFields    = []string{"location", "location_id", "sede", "branch", "location.id"}
	serviceIDFields   = []string{"service_id", "servicio_id", "service.id", "servicio.id", "service"}
	serviceNameFields = []string{"service_name", "servicio_nombre", "service.name", "servicio.nombre", "servicio"}
	dateFields        = []string{"date", "fecha", "appointment_date", "scheduled_date"}
	timeFields        = []string{"time", "hora", "start_time", "appointment_time"}
	dateTimeFields    = []string{"datetime", "fecha_hora", "scheduled_at", "start"}
	durationFields    = []string{"duration", "duration_minutes", "duracion", "service.duration"}
	statusFields      = []string{"status", "estado", "state"}
	nameFields        = []string{"patient_name", "name", "nombre", "client_name", "patient.name", "cliente.nombre"}
	emailFields       = []string{"patient_email", "email", "correo", "client_email", "patient.email", "cliente.email"}
	phoneFields       = []string{"patient_phone", "phone", "telefono", "patient.phone", "cliente.telefono"}
	notesFields       = []string{"notes", "notas", "comments", "observaciones"}
	reasonFields      = []string{"cancellation_reason", "cancel_reason", "motivo_cancelacion", "motivo"}
	replacedByFields  = []string{"replaced_by", "reemplazado_por", "rescheduled_to"}
	createdFields     = []string{"created_at", "creado"}
	updatedFields     = []string{"updated_at", "actualizado"}
)

var statusVocabulary = map[string]Status{
	"pending":       StatusPending,
	"pendiente":     StatusPending,
	"por_confirmar": StatusPending,
	"en_espera":     StatusPending,
	"confirmed":     StatusConfirmed,
	"confirmada":    StatusConfirmed,
	"confirmado":    StatusConfirmed,
	"booked":        StatusConfirmed,
	"agendada":      StatusConfirmed,
	"rescheduled":   StatusRescheduled,
	"reprogramada":  StatusRescheduled,
	"reprogramado":  StatusRescheduled,
	"cancelled":     StatusCancelled,
	"canceled":      StatusCancelled,
	"cancelada":     StatusCancelled,
	"cancelado":     StatusCancelled,
	"anulada":       StatusCancelled,
	"completed":     StatusCompleted,
	"completada":    StatusCompleted,
	"completado":    StatusCompleted,
	"realizada":     StatusCompleted,
	"atendida":      StatusCompleted,
	"attended":      StatusCompleted,
	"fulfilled":     StatusCompleted,
	"no_show":       StatusNoShow,
	"noshow":        StatusNoShow,
	"ausente":       StatusNoShow,
	"no_asistio":    StatusNoShow,
	"no_vino":       StatusNoShow,
}

// foldToken lowercases, strips accents and joins words with underscores.
func foldToken(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	return strings.NewReplacer(" ", "_", "-", "_").Replace(folded)
}

// LookupStatus resolves an English or Spanish status token.
func LookupStatus(token string) (Status, bool) {
	s, ok := statusVocabulary[foldToken(token)]
	return s, ok
}

// ParseStatus resolves a status token; unknown tokens read as pending.
func ParseStatus(token string) Status {
	if s, ok := LookupStatus(token); ok {
		return s
	}
	return StatusPending
}

// Normalize converts an external record into an Appointment. Records lacking
// an id, a date or a start time fail with ErrUnnormalizable.
func Normalize(raw RawRecord) (Appointment, error) {
	var a Appointment

	a.ID = pickString(raw, idFields...)
	if a.ID == "" {
		return a, fmt.Errorf("%w: missing id", ErrUnnormalizable)
	}

	date, minute, err := pickSchedule(raw)
	if err != nil {
		return a, fmt.Errorf("%w: %s: %v", ErrUnnormalizable, a.ID, err)
	}
	a.Date = date
	a.StartMinute = minute

	a.LocationID = foldToken(pickString(raw, locationFields...))
	a.ServiceID = pickString(raw, serviceIDFields...)
	a.ServiceName = pickString(raw, serviceNameFields...)
	if a.ServiceName == "" {
		a.ServiceName = a.ServiceID
	}
	if d, ok := pickInt(raw, durationFields...); ok && d > 0 {
		a.Duration = d
	} else {
		a.Duration = DefaultDuration
	}
	a.Status = ParseStatus(pickString(raw, statusFields...))
	a.Patient = Contact{
		Name:  pickString(raw, nameFields...),
		Email: pickString(raw, emailFields...),
		Phone: pickString(raw, phoneFields...),
	}
	a.Notes = pickString(raw, notesFields...)
	a.CancellationReason = pickString(raw, reasonFields...)
	a.ReplacedBy = pickString(raw, replacedByFields...)
	a.CreatedAt = pickTime(raw, createdFields...)
	a.UpdatedAt = pickTime(raw, updatedFields...)
	return a, nil
}

func pickSchedule(raw RawRecord) (time.Time, int, error) {
	dateStr := pickString(raw, dateFields...)
	timeStr := pickString(raw, timeFields...)

	if dateStr == "" || timeStr == "" {
		if ts := pickString(raw, dateTimeFields...); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				if dateStr == "" {
					dateStr = t.Format("2006-01-02")
				}
				if timeStr == "" {
					timeStr = t.Format("15:04")
				}
			}
		}
	}
	if dateStr == "" {
		return time.Time{}, 0, fmt.Errorf("missing date")
	}
	if timeStr == "" {
		return time.Time{}, 0, fmt.Errorf("missing time")
	}

	date, err := parseLooseDate(dateStr)
	if err != nil {
		return time.Time{}, 0, err
	}
	minute, err := parseLooseClock(timeStr)
	if err != nil {
		return time.Time{}, 0, err
	}
	return date, minute, nil
}

func parseLooseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "02/01/2006", "2/1/2006", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func parseLooseClock(s string) (int, error) {
	for _, layout := range []string{"15:04", "15:04:05", "3:04PM", "3:04 PM"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < 24*60 {
		return n, nil
	}
	return 0, fmt.Errorf("unparseable time %q", s)
}

func lookup(raw RawRecord, path string) (any, bool) {
	var cur any = map[string]any(raw)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func pickString(raw RawRecord, keys ...string) string {
	for _, k := range keys {
		v, ok := lookup(raw, k)
		if !ok {
			continue
		}
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case float64:
			s = strconv.FormatFloat(x, 'f', -1, 64)
		case json.Number:
			s = x.String()
		case int:
			s = strconv.Itoa(x)
		case int64:
			s = strconv.FormatInt(x, 10)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func pickInt(raw RawRecord, keys ...string) (int, bool) {
	s := pickString(raw, keys...)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

func pickTime(raw RawRecord, keys ...string) time.Time {
	s := pickString(raw, keys...)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
