// Package slots generates the candidate slot sequence for a business day and
// marks slots against existing reservations. Slots are ephemeral: pure output
// of (day, hours, duration), recomputed on every query.
package slots

import "time"

// Hours is a resource's business-hours window in local whole hours.
type Hours struct {
	StartHour int
	EndHour   int
}

// Slot is a fixed-duration candidate interval [StartAt, EndAt).
type Slot struct {
	StartAt   time.Time
	EndAt     time.Time
	Available bool
}

type Interval struct {
	Start time.Time
	End   time.Time
}

// Generate tiles [businessStart, businessEnd) of the local day containing
// dayStart with contiguous slots of exactly duration. A trailing remainder
// shorter than duration is truncated, never emitted.
//
// dayStart must be local midnight in the business timezone; slot boundaries
// are derived with calendar arithmetic in that zone.
func Generate(dayStart time.Time, hours Hours, duration time.Duration) []Slot {
	if duration <= 0 || hours.EndHour <= hours.StartHour {
		return nil
	}

	loc := dayStart.Location()
	y, m, d := dayStart.Date()
	open := time.Date(y, m, d, hours.StartHour, 0, 0, 0, loc)
	close := time.Date(y, m, d, hours.EndHour, 0, 0, 0, loc)

	out := make([]Slot, 0, int(close.Sub(open)/duration))
	for t := open; !t.Add(duration).After(close); t = t.Add(duration) {
		out = append(out, Slot{
			StartAt:   t,
			EndAt:     t.Add(duration),
			Available: true,
		})
	}
	return out
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect: aStart < bEnd && aEnd > bStart.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// MarkBusy clears Available on every slot that overlaps any busy interval,
// including partial overlaps.
func MarkBusy(slots []Slot, busy []Interval) {
	for i := range slots {
		for _, b := range busy {
			if Overlaps(slots[i].StartAt, slots[i].EndAt, b.Start, b.End) {
				slots[i].Available = false
				break
			}
		}
	}
}
