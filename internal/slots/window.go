package slots

import "time"

// BookableDates returns today (in loc) and the following windowDays-1 dates.
func BookableDates(now time.Time, loc *time.Location, windowDays int) []Date {
	if windowDays <= 0 {
		return nil
	}
	today := Today(now, loc)
	dates := make([]Date, windowDays)
	for i := range dates {
		dates[i] = today.AddDays(i)
	}
	return dates
}

// IsBookable reports whether target falls inside the rolling window.
func IsBookable(target Date, now time.Time, loc *time.Location, windowDays int) bool {
	offset := Today(now, loc).DaysUntil(target)
	return offset >= 0 && offset < windowDays
}

// WindowOpensAt is midnight in loc on target minus windowDays, the instant a
// future date becomes bookable.
func WindowOpensAt(target Date, loc *time.Location, windowDays int) time.Time {
	return Midnight(target.AddDays(-windowDays), loc)
}
