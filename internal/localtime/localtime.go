// Package localtime converts between the business's fixed local timezone and
// the absolute instants used for storage and comparison.
package localtime

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Zone is the business's local timezone, loaded once at startup.
type Zone struct {
	name string
	loc  *time.Location
}

func Load(name string) (*Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &Zone{name: name, loc: loc}, nil
}

func (z *Zone) Name() string { return z.name }

func (z *Zone) Location() *time.Location { return z.loc }

// ParseDate parses a YYYY-MM-DD calendar date as local midnight.
func (z *Zone) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, z.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// DayBounds returns the absolute start (local 00:00) and exclusive end
// (local 24:00) of the local calendar day containing day. Computed via
// calendar arithmetic in the local zone so any offset, including DST
// transitions, is accounted for.
func (z *Zone) DayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.In(z.loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, z.loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// ParseLocal parses an RFC3339 timestamp carrying an explicit offset and
// returns the absolute instant. Inverse of FormatLocal to the second.
func (z *Zone) ParseLocal(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q (want RFC3339)", s)
	}
	return t.UTC(), nil
}

// FormatLocal renders an absolute instant as an RFC3339 string in the local
// zone, offset included.
func (z *Zone) FormatLocal(t time.Time) string {
	return t.In(z.loc).Format(time.RFC3339)
}

// FormatLabel renders a human-readable local date-time range label for
// notifications, e.g. "2026-01-28 10:00-10:15 (Asia/Tokyo)".
func (z *Zone) FormatLabel(start, end time.Time) string {
	ls := start.In(z.loc)
	le := end.In(z.loc)
	return fmt.Sprintf("%s %s-%s (%s)",
		ls.Format(dateLayout),
		ls.Format("15:04"),
		le.Format("15:04"),
		z.name,
	)
}
