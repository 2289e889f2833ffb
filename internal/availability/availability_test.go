package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codr1/Courtside/internal/config"
	"github.com/codr1/Courtside/internal/models"
	"github.com/codr1/Courtside/internal/slots"
	"github.com/codr1/Courtside/internal/testutil"
)

func hourSlot(day time.Time, hour int) slots.Quote {
	start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.UTC)
	return slots.Quote{Slot: slots.Slot{Start: start, End: start.Add(time.Hour), Local: slots.TimeOfDay(hour * 60)}}
}

func TestMark(t *testing.T) {
	day := time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC)
	now := day.Add(9 * time.Hour)
	quotes := []slots.Quote{hourSlot(day, 8), hourSlot(day, 9), hourSlot(day, 10), hourSlot(day, 11), hourSlot(day, 12), hourSlot(day, 13)}

	occupied := []Interval{{Start: day.Add(10*time.Hour + 30*time.Minute), End: day.Add(11*time.Hour + 30*time.Minute)}}
	blocked := []Interval{{Start: day.Add(13 * time.Hour), End: day.Add(14 * time.Hour)}}

	got := Mark(quotes, now, occupied, blocked)

	want := []struct {
		available bool
		reason    string
	}{
		{false, ReasonPast},
		{false, ReasonPast}, // starts exactly at now
		{false, ReasonBooked},
		{false, ReasonBooked},
		{true, ""},
		{false, ReasonBlocked},
	}
	for i, w := range want {
		if got[i].IsAvailable != w.available || got[i].Reason != w.reason {
			t.Errorf("slot %s: got (%v, %q), want (%v, %q)", got[i].LocalTime, got[i].IsAvailable, got[i].Reason, w.available, w.reason)
		}
	}
}

func TestMark_AdjacentIntervalsDoNotOverlap(t *testing.T) {
	day := time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC)
	quotes := []slots.Quote{hourSlot(day, 10)}
	occupied := []Interval{{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}}
	blocked := []Interval{{Start: day.Add(11 * time.Hour), End: day.Add(12 * time.Hour)}}

	got := Mark(quotes, day, occupied, blocked)
	if !got[0].IsAvailable {
		t.Fatalf("slot touching neighbours should be available, got reason %q", got[0].Reason)
	}
}

func TestAggregate(t *testing.T) {
	start := time.Date(2025, time.June, 3, 10, 0, 0, 0, time.UTC)
	courts := []CourtDay{
		{CourtID: 1, CourtName: "A", Slots: []SlotState{
			{Start: start, End: start.Add(time.Hour), LocalTime: "10:00", IsAvailable: true},
			{Start: start.Add(time.Hour), End: start.Add(2 * time.Hour), LocalTime: "11:00", IsAvailable: false},
		}},
		{CourtID: 2, CourtName: "B", Slots: []SlotState{
			{Start: start, End: start.Add(time.Hour), LocalTime: "10:00", IsAvailable: false},
			{Start: start.Add(time.Hour), End: start.Add(2 * time.Hour), LocalTime: "11:00", IsAvailable: false},
		}},
	}

	times := Aggregate(courts)
	if len(times) != 2 {
		t.Fatalf("expected 2 time rows, got %d", len(times))
	}
	if times[0].LocalTime != "10:00" || times[0].AvailableCount != 1 || times[0].TotalCourts != 2 {
		t.Errorf("unexpected 10:00 summary: %+v", times[0])
	}
	if times[1].AvailableCount != 0 || len(times[1].Courts) != 2 {
		t.Errorf("unexpected 11:00 summary: %+v", times[1])
	}
}

func loadOrg(t *testing.T, q models.OrganizationQueries, slug string) models.Organization {
	t.Helper()
	org, err := models.LoadOrganizationBySlug(context.Background(), q, slug, config.DefaultBooking())
	if err != nil {
		t.Fatalf("load organization: %v", err)
	}
	return org
}

func TestCalculator_Day(t *testing.T) {
	database := testutil.NewTestDB(t)
	orgID, slug := testutil.SeedOrganization(t, database, testutil.OrgOptions{})
	peak := int64(3000)
	courtA := testutil.SeedCourt(t, database, orgID, testutil.CourtOptions{Name: "A", BasePriceCents: 2000, PeakPriceCents: &peak})
	courtB := testutil.SeedCourt(t, database, orgID, testutil.CourtOptions{Name: "B", BasePriceCents: 2000})
	testutil.SeedCourt(t, database, orgID, testutil.CourtOptions{Name: "Closed", Inactive: true})
	userID := testutil.SeedUser(t, database, orgID, "member", true)

	// Tuesday 2025-06-03.
	day := time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC)
	testutil.SeedConfirmedBooking(t, database, orgID, courtA, userID, day.Add(10*time.Hour), day.Add(11*time.Hour))
	testutil.SeedBlock(t, database, courtB, day.Add(10*time.Hour), day.Add(12*time.Hour))

	now := day.Add(-6 * time.Hour)
	calc := NewCalculator(database.Queries, func() time.Time { return now })
	org := loadOrg(t, database.Queries, slug)

	got, err := calc.Day(context.Background(), org, slots.DateOf(day, time.UTC))
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if !got.Bookable || got.OpensAt != nil {
		t.Fatalf("expected bookable date without opening instant, got %+v", got)
	}
	if len(got.Courts) != 2 {
		t.Fatalf("expected 2 active courts, got %d", len(got.Courts))
	}

	var ten, eleven, eighteen *TimeSummary
	for i := range got.Times {
		switch got.Times[i].LocalTime {
		case "10:00":
			ten = &got.Times[i]
		case "11:00":
			eleven = &got.Times[i]
		case "18:00":
			eighteen = &got.Times[i]
		}
	}
	if ten == nil || ten.AvailableCount != 0 || ten.TotalCourts != 2 {
		t.Fatalf("10:00 should have 0/2 available, got %+v", ten)
	}
	if eleven == nil || eleven.AvailableCount != 1 {
		t.Fatalf("11:00 should have 1/2 available, got %+v", eleven)
	}
	if eighteen == nil {
		t.Fatal("missing 18:00 row")
	}
	for _, c := range eighteen.Courts {
		switch c.CourtID {
		case courtA:
			if !c.Peak || c.PriceCents != 3000 {
				t.Errorf("court A 18:00 should be peak at 3000, got %+v", c)
			}
		case courtB:
			if !c.Peak || c.PriceCents != 2000 {
				t.Errorf("court B 18:00 has no peak rate and should charge base, got %+v", c)
			}
		}
	}
}

func TestCalculator_ReleasedBookingsFreeInventory(t *testing.T) {
	database := testutil.NewTestDB(t)
	orgID, slug := testutil.SeedOrganization(t, database, testutil.OrgOptions{})
	courtID := testutil.SeedCourt(t, database, orgID, testutil.CourtOptions{})
	userID := testutil.SeedUser(t, database, orgID, "member", true)

	day := time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC)
	bookingID := testutil.SeedConfirmedBooking(t, database, orgID, courtID, userID, day.Add(10*time.Hour), day.Add(11*time.Hour))
	if _, err := database.Exec(`UPDATE bookings SET status = 'CANCELLED' WHERE id = ?`, bookingID); err != nil {
		t.Fatalf("cancel booking: %v", err)
	}

	calc := NewCalculator(database.Queries, func() time.Time { return day })
	court, err := calc.Court(context.Background(), loadOrg(t, database.Queries, slug), courtID, slots.DateOf(day, time.UTC))
	if err != nil {
		t.Fatalf("Court: %v", err)
	}
	for _, s := range court.Slots {
		if s.LocalTime == "10:00" && !s.IsAvailable {
			t.Fatalf("cancelled booking must not occupy inventory, got reason %q", s.Reason)
		}
	}
}

func TestCalculator_OutsideWindow(t *testing.T) {
	database := testutil.NewTestDB(t)
	orgID, slug := testutil.SeedOrganization(t, database, testutil.OrgOptions{})
	courtID := testutil.SeedCourt(t, database, orgID, testutil.CourtOptions{})

	now := time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC)
	calc := NewCalculator(database.Queries, func() time.Time { return now })
	org := loadOrg(t, database.Queries, slug)
	target := slots.DateOf(now, time.UTC).AddDays(org.Settings.WindowDays)

	got, err := calc.Day(context.Background(), org, target)
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if got.Bookable || got.OpensAt == nil {
		t.Fatalf("expected unbookable date with opening instant, got bookable=%v opensAt=%v", got.Bookable, got.OpensAt)
	}
	for _, s := range got.Courts[0].Slots {
		if s.IsAvailable {
			t.Fatalf("slot %s outside the window must be unavailable", s.LocalTime)
		}
	}

	if _, err := calc.Court(context.Background(), org, courtID+100, target); !errors.Is(err, ErrCourtNotFound) {
		t.Fatalf("expected ErrCourtNotFound, got %v", err)
	}
}
