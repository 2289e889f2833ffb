package slots

import (
	"encoding/json"
	"testing"
	"time"
)

func mustTOD(t *testing.T, value string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(value)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q): %v", value, err)
	}
	return tod
}

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("zoneinfo for %s unavailable: %v", name, err)
	}
	return loc
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{"08:00", 480, false},
		{"7:30", 450, false},
		{"23:59", 1439, false},
		{"24:00", 1440, false},
		{"24:30", 0, true},
		{"12:60", 0, true},
		{"1200", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDateJSON(t *testing.T) {
	d := Date{Year: 2025, Month: time.March, Day: 9}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2025-03-09"` {
		t.Fatalf("got %s", data)
	}

	var parsed Date
	if err := json.Unmarshal([]byte(`"2025-12-31"`), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.AddDays(1).String() != "2026-01-01" {
		t.Fatalf("AddDays across year boundary: got %s", parsed.AddDays(1))
	}
}

func TestGenerate_NoPartialTrailingSlot(t *testing.T) {
	d := Date{Year: 2025, Month: time.June, Day: 2}
	got := Generate(d, mustTOD(t, "08:00"), mustTOD(t, "10:30"), 60, time.UTC)
	if len(got) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(got))
	}
	if got[1].End.After(At(d, mustTOD(t, "10:30"), time.UTC)) {
		t.Fatalf("last slot ends after close: %v", got[1].End)
	}
	if got[0].Local.String() != "08:00" || got[1].Local.String() != "09:00" {
		t.Fatalf("unexpected local starts: %s, %s", got[0].Local, got[1].Local)
	}
}

func TestGenerate_ExactFitAndInvalid(t *testing.T) {
	d := Date{Year: 2025, Month: time.June, Day: 2}
	if got := Generate(d, mustTOD(t, "08:00"), mustTOD(t, "10:00"), 30, time.UTC); len(got) != 4 {
		t.Fatalf("expected 4 half-hour slots, got %d", len(got))
	}
	if got := Generate(d, mustTOD(t, "10:00"), mustTOD(t, "08:00"), 60, time.UTC); got != nil {
		t.Fatalf("expected no slots when close precedes open, got %d", len(got))
	}
	if got := Generate(d, mustTOD(t, "08:00"), mustTOD(t, "24:00"), 60, time.UTC); len(got) != 16 {
		t.Fatalf("expected 16 slots closing at midnight, got %d", len(got))
	}
}

func TestAt_AcrossDSTTransitions(t *testing.T) {
	ny := mustLocation(t, "America/New_York")

	// 2025-03-09: clocks jump from 02:00 EST to 03:00 EDT.
	spring := Date{Year: 2025, Month: time.March, Day: 9}
	before := At(spring, mustTOD(t, "01:00"), ny)
	after := At(spring, mustTOD(t, "03:00"), ny)
	if got := after.Sub(before); got != time.Hour {
		t.Fatalf("01:00 to 03:00 on spring-forward day should be 1h apart, got %v", got)
	}
	if before.UTC().Hour() != 6 || after.UTC().Hour() != 7 {
		t.Fatalf("unexpected UTC hours: %v, %v", before.UTC(), after.UTC())
	}

	// A 10:00 slot on the transition day is 14:00 UTC, the day before it was 15:00 UTC.
	if got := At(spring, mustTOD(t, "10:00"), ny).UTC().Hour(); got != 14 {
		t.Fatalf("10:00 EDT should be 14:00 UTC, got %d", got)
	}
	if got := At(spring.AddDays(-1), mustTOD(t, "10:00"), ny).UTC().Hour(); got != 15 {
		t.Fatalf("10:00 EST should be 15:00 UTC, got %d", got)
	}

	// 2024-03-10: a court open across the gap loses the missing hour and
	// every remaining slot keeps a positive length with no overlap.
	gapDay := Date{Year: 2024, Month: time.March, Day: 10}
	gapSlots := Generate(gapDay, mustTOD(t, "00:00"), mustTOD(t, "06:00"), 60, ny)
	if len(gapSlots) != 5 {
		t.Fatalf("expected 5 slots across the spring-forward gap, got %d", len(gapSlots))
	}
	for i, s := range gapSlots {
		if !s.End.After(s.Start) {
			t.Fatalf("slot %s has non-positive length: %v -> %v", s.Local, s.Start, s.End)
		}
		if s.End.Sub(s.Start) != time.Hour {
			t.Fatalf("slot %s lasts %v, want 1h", s.Local, s.End.Sub(s.Start))
		}
		if i > 0 && s.Start.Before(gapSlots[i-1].End) {
			t.Fatalf("slot %s overlaps the previous slot", s.Local)
		}
		local := s.Start.In(ny)
		if local.Hour()*60+local.Minute() != int(s.Local) {
			t.Fatalf("slot local start %s does not match instant %v", s.Local, local)
		}
	}

	// 2025-11-02: clocks fall back from 02:00 EDT to 01:00 EST.
	fall := Date{Year: 2025, Month: time.November, Day: 2}
	slots := Generate(fall, mustTOD(t, "00:00"), mustTOD(t, "04:00"), 60, ny)
	if len(slots) != 4 {
		t.Fatalf("expected 4 generated slots, got %d", len(slots))
	}
	for _, s := range slots {
		local := s.Start.In(ny)
		if local.Hour()*60+local.Minute() != int(s.Local) {
			t.Fatalf("slot local start %s does not match instant %v", s.Local, local)
		}
	}
}

func TestIsPeak(t *testing.T) {
	w := DefaultPeakWindow
	tests := []struct {
		day  time.Weekday
		hour int
		want bool
	}{
		{time.Monday, 17, false},
		{time.Monday, 18, true},
		{time.Monday, 20, true},
		{time.Monday, 21, false},
		{time.Friday, 0, false},
		{time.Wednesday, 23, false},
		{time.Saturday, 6, true},
		{time.Sunday, 23, true},
	}
	for _, tt := range tests {
		if got := IsPeak(tt.day, tt.hour, w); got != tt.want {
			t.Errorf("IsPeak(%s, %d) = %v, want %v", tt.day, tt.hour, got, tt.want)
		}
	}

	for hour := 0; hour < 24; hour++ {
		want := hour >= 18 && hour < 21
		if got := IsPeak(time.Tuesday, hour, w); got != want {
			t.Errorf("IsPeak(Tuesday, %d) = %v, want %v", hour, got, want)
		}
		if !IsPeak(time.Saturday, hour, w) || !IsPeak(time.Sunday, hour, w) {
			t.Errorf("weekend hour %d should be peak", hour)
		}
	}
}

func TestPriceAll_MixedPeakBoundary(t *testing.T) {
	peak := int64(3000)
	rates := Rates{BasePerHourCents: 2000, PeakPerHourCents: &peak}
	monday := Date{Year: 2025, Month: time.June, Day: 2}

	day := Generate(monday, mustTOD(t, "08:00"), mustTOD(t, "22:00"), 60, time.UTC)
	start := FindAligned(day, At(monday, mustTOD(t, "17:00"), time.UTC), At(monday, mustTOD(t, "18:00"), time.UTC))
	if start < 0 {
		t.Fatal("17:00 slot not generated")
	}

	quotes, total := PriceAll(day[start:start+3], time.UTC, DefaultPeakWindow, rates)
	if total != 8000 {
		t.Fatalf("expected total 8000, got %d", total)
	}
	want := []int64{2000, 3000, 3000}
	for i, q := range quotes {
		if q.PriceCents != want[i] {
			t.Errorf("slot %d: got %d, want %d", i, q.PriceCents, want[i])
		}
	}
}

func TestRates_NoPeakPriceFallsBackToBase(t *testing.T) {
	rates := Rates{BasePerHourCents: 1500}
	if got := rates.Price(true); got != 1500 {
		t.Fatalf("expected base price for peak slot without peak rate, got %d", got)
	}
}

func TestBookableDates_WindowEdges(t *testing.T) {
	loc := mustLocation(t, "America/New_York")
	// 02:30 UTC on June 3 is still June 2 in New York.
	now := time.Date(2025, time.June, 3, 2, 30, 0, 0, time.UTC)

	dates := BookableDates(now, loc, 14)
	if len(dates) != 14 {
		t.Fatalf("expected 14 dates, got %d", len(dates))
	}
	today := Date{Year: 2025, Month: time.June, Day: 2}
	if dates[0] != today {
		t.Fatalf("expected first date %s, got %s", today, dates[0])
	}
	for i := 1; i < len(dates); i++ {
		if dates[i-1].AddDays(1) != dates[i] {
			t.Fatalf("dates not consecutive at %d: %s then %s", i, dates[i-1], dates[i])
		}
	}

	if !IsBookable(today.AddDays(13), now, loc, 14) {
		t.Error("windowDays-1 days out must be bookable")
	}
	if IsBookable(today.AddDays(14), now, loc, 14) {
		t.Error("windowDays days out must not be bookable")
	}
	if IsBookable(today.AddDays(-1), now, loc, 14) {
		t.Error("yesterday must not be bookable")
	}
}

func TestWindowOpensAt(t *testing.T) {
	loc := mustLocation(t, "America/New_York")
	target := Date{Year: 2025, Month: time.March, Day: 20}

	got := WindowOpensAt(target, loc, 14)
	// March 6 is before the DST change, so midnight EST is 05:00 UTC.
	want := time.Date(2025, time.March, 6, 5, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got.UTC(), want)
	}
	if local := got.In(loc); local.Hour() != 0 || local.Minute() != 0 {
		t.Fatalf("opening instant should be local midnight, got %v", local)
	}
}
