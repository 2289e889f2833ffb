package slots

import "time"

// Slot is a candidate booking interval [Start, End).
type Slot struct {
	Start time.Time
	End   time.Time
	// Local is the slot's start time-of-day in the organization's zone.
	Local TimeOfDay
}

// Overlaps reports half-open interval overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Generate returns every consecutive durationMinutes interval from open to
// close on date d in loc. A trailing partial slot that would end after close
// is not generated.
//
// On a spring-forward day a boundary inside the gap collapses onto a real
// instant. Slots left empty or overlapping the previous slot are dropped, and
// Local is the wall time the slot actually starts at.
func Generate(d Date, open, close TimeOfDay, durationMinutes int, loc *time.Location) []Slot {
	if durationMinutes <= 0 || close <= open {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	var out []Slot
	for m := open; m+TimeOfDay(durationMinutes) <= close; m += TimeOfDay(durationMinutes) {
		start := At(d, m, loc)
		end := At(d, m+TimeOfDay(durationMinutes), loc)
		if !end.After(start) {
			continue
		}
		if n := len(out); n > 0 && start.Before(out[n-1].End) {
			continue
		}
		local := start.In(loc)
		out = append(out, Slot{
			Start: start,
			End:   end,
			Local: TimeOfDay(local.Hour()*60 + local.Minute()),
		})
	}
	return out
}

// FindAligned returns the index of the generated slot that starts at start
// and ends at end, or -1.
func FindAligned(generated []Slot, start, end time.Time) int {
	for i, s := range generated {
		if s.Start.Equal(start) && s.End.Equal(end) {
			return i
		}
	}
	return -1
}
