package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// SlotMinutes is the fixed granularity of a bookable slot.
const SlotMinutes = 30

var ErrUnknownLocation = errors.New("unknown location")

// Window is an open interval of the day, in minutes since midnight.
type Window struct {
	Start int
	End   int
}

// Length returns the number of open minutes, never negative.
func (w Window) Length() int {
	if w.End <= w.Start {
		return 0
	}
	return w.End - w.Start
}

// Location is a clinic site with its weekly opening hours.
// Weekdays missing from Weekly are closed.
type Location struct {
	ID     string
	Label  string
	Weekly map[time.Weekday]Window
}

// WindowOn returns the opening window for the weekday, if any.
func (l Location) WindowOn(day time.Weekday) (Window, bool) {
	w, ok := l.Weekly[day]
	return w, ok
}

// Catalog is the immutable table of locations. It is safe for concurrent use.
type Catalog struct {
	locations map[string]Location
	tz        *time.Location
}

// NewCatalog builds a catalog. tz is the clinic time zone used to turn a
// (date, minute) pair into an absolute instant; nil means UTC.
func NewCatalog(tz *time.Location, locations ...Location) *Catalog {
	if tz == nil {
		tz = time.UTC
	}
	c := &Catalog{
		locations: make(map[string]Location, len(locations)),
		tz:        tz,
	}
	for _, l := range locations {
		weekly := make(map[time.Weekday]Window, len(l.Weekly))
		for d, w := range l.Weekly {
			weekly[d] = w
		}
		l.Weekly = weekly
		c.locations[l.ID] = l
	}
	return c
}

func (c *Catalog) TimeZone() *time.Location { return c.tz }

// Location looks up a location by id.
func (c *Catalog) Location(id string) (Location, error) {
	l, ok := c.locations[id]
	if !ok {
		return Location{}, fmt.Errorf("%w: %q", ErrUnknownLocation, id)
	}
	return l, nil
}

// Label returns the display label of a location, or the id itself when unknown.
func (c *Catalog) Label(id string) string {
	if l, ok := c.locations[id]; ok && l.Label != "" {
		return l.Label
	}
	return id
}

// Locations returns every location ordered by id.
func (c *Catalog) Locations() []Location {
	out := make([]Location, 0, len(c.locations))
	for _, l := range c.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SlotsFor returns the bookable start minutes for a location on a date, in
// ascending order. Unknown locations and closed days yield an empty slice.
//
// The weekday is read from the date's own calendar fields (0 = Sunday).
func (c *Catalog) SlotsFor(locationID string, date time.Time) []int {
	l, ok := c.locations[locationID]
	if !ok {
		return []int{}
	}
	w, ok := l.WindowOn(Civil(date).Weekday())
	if !ok {
		return []int{}
	}
	return Generate(w, SlotMinutes)
}

// IsSlot reports whether minute is one of SlotsFor(locationID, date).
func (c *Catalog) IsSlot(locationID string, date time.Time, minute int) bool {
	for _, m := range c.SlotsFor(locationID, date) {
		if m == minute {
			return true
		}
		if m > minute {
			return false
		}
	}
	return false
}

// Fits reports whether an appointment of the given duration can start at
// minute: the start must be a slot and the body must end before closing.
func (c *Catalog) Fits(locationID string, date time.Time, minute, duration int) bool {
	if !c.IsSlot(locationID, date, minute) {
		return false
	}
	if duration <= 0 {
		duration = SlotMinutes
	}
	w, _ := c.locations[locationID].WindowOn(Civil(date).Weekday())
	return minute+duration <= w.End
}

// StartAt converts a civil date and minute of day into an instant in the
// clinic time zone.
func (c *Catalog) StartAt(date time.Time, minute int) time.Time {
	d := Civil(date)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.tz).Add(time.Duration(minute) * time.Minute)
}

// Today returns the civil date of now in the clinic time zone.
func (c *Catalog) Today(now time.Time) time.Time {
	return Civil(now.In(c.tz))
}
