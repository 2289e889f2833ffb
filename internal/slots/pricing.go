package slots

import "time"

// PeakWindow is the weekday evening window [StartHour, EndHour) in local hours.
type PeakWindow struct {
	StartHour int
	EndHour   int
}

var DefaultPeakWindow = PeakWindow{StartHour: 18, EndHour: 21}

// IsPeak classifies a slot by its local weekday and start hour. Weekends are
// always peak.
func IsPeak(day time.Weekday, hour int, w PeakWindow) bool {
	if day == time.Saturday || day == time.Sunday {
		return true
	}
	return hour >= w.StartHour && hour < w.EndHour
}

// Rates are a court's per-hour prices in cents.
type Rates struct {
	BasePerHourCents int64
	PeakPerHourCents *int64
}

// Price charges one slot at the flat per-hour rate regardless of the slot's
// duration. The peak rate applies only when the court configures one.
func (r Rates) Price(peak bool) int64 {
	if peak && r.PeakPerHourCents != nil {
		return *r.PeakPerHourCents
	}
	return r.BasePerHourCents
}

// Quote is the resolved price of one slot.
type Quote struct {
	Slot
	Peak       bool
	PriceCents int64
}

// PriceSlot resolves a slot's peak status from its own local start time.
func PriceSlot(s Slot, loc *time.Location, w PeakWindow, r Rates) Quote {
	local := s.Start.In(loc)
	peak := IsPeak(local.Weekday(), local.Hour(), w)
	return Quote{Slot: s, Peak: peak, PriceCents: r.Price(peak)}
}

// PriceAll prices each slot independently and returns the quotes with their sum.
func PriceAll(in []Slot, loc *time.Location, w PeakWindow, r Rates) ([]Quote, int64) {
	quotes := make([]Quote, 0, len(in))
	var total int64
	for _, s := range in {
		q := PriceSlot(s, loc, w, r)
		quotes = append(quotes, q)
		total += q.PriceCents
	}
	return quotes, total
}
