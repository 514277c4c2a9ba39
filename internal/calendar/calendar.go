// Package calendar projects a snapshot of appointments onto month and day
// views.
package calendar

import (
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

const (
	gridWeeks = 6
	gridDays  = 7
)

// Cell is one day of the month grid.
type Cell struct {
	Date          time.Time
	InMonth       bool
	Appointments  int
	Active        int
	OccupiedSlots int
	TotalSlots    int
}

type Month struct {
	Year  int
	Month time.Month
	Weeks [gridWeeks][gridDays]Cell
}

// SlotView pairs a slot with the active appointment covering it, if any.
type SlotView struct {
	Minute      int
	Appointment *appointment.Appointment
}

func (v SlotView) Occupied() bool { return v.Appointment != nil }

// Day lists one location's slots and every appointment it has that day.
type Day struct {
	Date         time.Time
	LocationID   string
	Slots        []SlotView
	Appointments []appointment.Appointment
}

type Projector struct {
	catalog *availability.Catalog
}

func NewProjector(catalog *availability.Catalog) *Projector {
	return &Projector{catalog: catalog}
}

// Month builds a six-week grid starting on the Sunday on or before the first
// of the month. locations restricts the projection; empty means all.
func (p *Projector) Month(snap appointment.Snapshot, year int, month time.Month, locations ...string) Month {
	locs := p.scope(locations)
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	start := first.AddDate(0, 0, -int(first.Weekday()))

	out := Month{Year: year, Month: month}
	for w := 0; w < gridWeeks; w++ {
		for d := 0; d < gridDays; d++ {
			day := start.AddDate(0, 0, w*gridDays+d)
			out.Weeks[w][d] = p.cell(snap, day, month, locs)
		}
	}
	return out
}

func (p *Projector) cell(snap appointment.Snapshot, day time.Time, month time.Month, locs []string) Cell {
	c := Cell{Date: day, InMonth: day.Month() == month}
	for _, loc := range locs {
		dayAppts := snap.On(loc, day)
		c.Appointments += len(dayAppts)
		for _, a := range dayAppts {
			if a.IsActive() {
				c.Active++
			}
		}
		slots := p.catalog.SlotsFor(loc, day)
		c.TotalSlots += len(slots)
		for _, m := range slots {
			if coveringActive(dayAppts, m) != nil {
				c.OccupiedSlots++
			}
		}
	}
	return c
}

// Day returns the detail view of a date, one entry per location in scope.
func (p *Projector) Day(snap appointment.Snapshot, date time.Time, locations ...string) []Day {
	day := availability.Civil(date)
	locs := p.scope(locations)
	out := make([]Day, 0, len(locs))
	for _, loc := range locs {
		appts := snap.On(loc, day)
		slots := p.catalog.SlotsFor(loc, day)
		views := make([]SlotView, 0, len(slots))
		for _, m := range slots {
			views = append(views, SlotView{Minute: m, Appointment: coveringActive(appts, m)})
		}
		out = append(out, Day{
			Date:         day,
			LocationID:   loc,
			Slots:        views,
			Appointments: appts,
		})
	}
	return out
}

func (p *Projector) scope(locations []string) []string {
	if len(locations) > 0 {
		return locations
	}
	all := p.catalog.Locations()
	ids := make([]string, len(all))
	for i, l := range all {
		ids[i] = l.ID
	}
	return ids
}

func coveringActive(appts []appointment.Appointment, minute int) *appointment.Appointment {
	for i := range appts {
		if appts[i].IsActive() && appts[i].Covers(minute) {
			a := appts[i]
			return &a
		}
	}
	return nil
}
