package availability

import "time"

func hours(h, m int) int { return h*60 + m }

// DefaultLocations is the clinic's site table.
func DefaultLocations() []Location {
	weekdays := Window{Start: hours(8, 0), End: hours(18, 0)}
	afternoons := Window{Start: hours(14, 0), End: hours(20, 0)}
	return []Location{
		{
			ID:    "correa",
			Label: "Correa",
			Weekly: map[time.Weekday]Window{
				time.Tuesday: {Start: hours(7, 0), End: hours(16, 0)},
			},
		},
		{
			ID:    "rosario",
			Label: "Rosario",
			Weekly: map[time.Weekday]Window{
				time.Monday:    weekdays,
				time.Tuesday:   weekdays,
				time.Wednesday: weekdays,
				time.Thursday:  weekdays,
				time.Friday:    weekdays,
				time.Saturday:  {Start: hours(9, 0), End: hours(13, 0)},
			},
		},
		{
			ID:    "funes",
			Label: "Funes",
			Weekly: map[time.Weekday]Window{
				time.Monday:    afternoons,
				time.Wednesday: afternoons,
				time.Friday:    afternoons,
			},
		},
	}
}

// DefaultCatalog returns the site table bound to tz.
func DefaultCatalog(tz *time.Location) *Catalog {
	return NewCatalog(tz, DefaultLocations()...)
}
