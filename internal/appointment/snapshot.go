package appointment

import (
	"sort"
	"time"
)

// Snapshot is an immutable view of the appointments visible to one actor.
// Generation increases with every refresh; results computed against an older
// generation are stale and may be dropped by the caller.
type Snapshot struct {
	Generation   uint64
	TakenAt      time.Time
	Appointments []Appointment
}

// NewSnapshot copies appts and orders them by date, start and id.
func NewSnapshot(generation uint64, takenAt time.Time, appts []Appointment) Snapshot {
	cp := make([]Appointment, len(appts))
	copy(cp, appts)
	SortChronological(cp)
	return Snapshot{Generation: generation, TakenAt: takenAt, Appointments: cp}
}

func (s Snapshot) Find(id string) (Appointment, bool) {
	for _, a := range s.Appointments {
		if a.ID == id {
			return a, true
		}
	}
	return Appointment{}, false
}

// Apply upserts records into a new snapshot if basedOn is still the current
// generation. A stale basedOn leaves s untouched and returns false.
func (s Snapshot) Apply(basedOn uint64, updated ...Appointment) (Snapshot, bool) {
	if basedOn != s.Generation {
		return s, false
	}
	byID := make(map[string]int, len(s.Appointments))
	next := make([]Appointment, len(s.Appointments), len(s.Appointments)+len(updated))
	copy(next, s.Appointments)
	for i, a := range next {
		byID[a.ID] = i
	}
	for _, u := range updated {
		if i, ok := byID[u.ID]; ok {
			next[i] = u
			continue
		}
		byID[u.ID] = len(next)
		next = append(next, u)
	}
	SortChronological(next)
	return Snapshot{Generation: s.Generation + 1, TakenAt: s.TakenAt, Appointments: next}, true
}

// Active returns the records that still occupy their slot.
func (s Snapshot) Active() []Appointment {
	out := make([]Appointment, 0, len(s.Appointments))
	for _, a := range s.Appointments {
		if a.IsActive() {
			out = append(out, a)
		}
	}
	return out
}

// On returns the records for a location and civil date. An empty location
// matches all.
func (s Snapshot) On(locationID string, day time.Time) []Appointment {
	var out []Appointment
	for _, a := range s.Appointments {
		if (locationID == "" || a.LocationID == locationID) && a.OnDay(day) {
			out = append(out, a)
		}
	}
	return out
}

// SortChronological orders by date, then start minute, then id.
func SortChronological(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		return Before(appts[i], appts[j])
	})
}

func Before(a, b Appointment) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if a.StartMinute != b.StartMinute {
		return a.StartMinute < b.StartMinute
	}
	return a.ID < b.ID
}
