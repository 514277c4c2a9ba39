// Package listing filters, sorts and pages appointment snapshots for the
// list views.
package listing

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type SortKey string

const (
	SortDateAsc  SortKey = "date_asc"
	SortDateDesc SortKey = "date_desc"
	SortName     SortKey = "name"
)

// ParseSortKey falls back to date_asc for unknown input.
func ParseSortKey(s string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortDateDesc:
		return SortDateDesc
	case SortName:
		return SortName
	}
	return SortDateAsc
}

type Query struct {
	Text     string
	Status   string
	Location string
	Sort     SortKey
}

// Lister applies list queries. Labels come from the catalog; names are
// compared with the collation rules of its language.
type Lister struct {
	catalog *availability.Catalog
	lang    language.Tag
}

func New(catalog *availability.Catalog, lang language.Tag) *Lister {
	return &Lister{catalog: catalog, lang: lang}
}

// Apply returns the matching appointments of a snapshot in the requested
// order. The snapshot is not modified.
func (l *Lister) Apply(snap appointment.Snapshot, q Query) []appointment.Appointment {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	status, filterStatus, ok := statusFilter(q.Status)
	if !ok {
		return []appointment.Appointment{}
	}
	location := strings.ToLower(strings.TrimSpace(q.Location))
	if location == "all" || location == "todas" {
		location = ""
	}

	out := make([]appointment.Appointment, 0, len(snap.Appointments))
	for _, a := range snap.Appointments {
		if filterStatus && a.Status != status {
			continue
		}
		if location != "" && !strings.EqualFold(a.LocationID, location) {
			continue
		}
		if needle != "" && !strings.Contains(l.haystack(a), needle) {
			continue
		}
		out = append(out, a)
	}
	l.sort(out, q.Sort)
	return out
}

func (l *Lister) haystack(a appointment.Appointment) string {
	label := a.LocationID
	if l.catalog != nil {
		label = l.catalog.Label(a.LocationID)
	}
	return strings.ToLower(a.Patient.Name + " " + a.ServiceName + " " + label)
}

func (l *Lister) sort(appts []appointment.Appointment, key SortKey) {
	switch key {
	case SortDateDesc:
		sort.SliceStable(appts, func(i, j int) bool { return appointment.Before(appts[j], appts[i]) })
	case SortName:
		col := collate.New(l.lang, collate.IgnoreCase)
		sort.SliceStable(appts, func(i, j int) bool {
			if c := col.CompareString(appts[i].Patient.Name, appts[j].Patient.Name); c != 0 {
				return c < 0
			}
			return appointment.Before(appts[i], appts[j])
		})
	default:
		appointment.SortChronological(appts)
	}
}

// statusFilter resolves the status filter. An empty value or "all" disables
// filtering; an unknown token matches nothing.
func statusFilter(raw string) (appointment.Status, bool, bool) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "all", "todos", "todas":
		return "", false, true
	}
	s, ok := appointment.LookupStatus(raw)
	return s, true, ok
}
