package recurring

import (
	"context"
	"testing"
	"time"

	"github.com/codr1/Courtside/internal/audit"
	"github.com/codr1/Courtside/internal/booking"
	"github.com/codr1/Courtside/internal/config"
	"github.com/codr1/Courtside/internal/db"
	"github.com/codr1/Courtside/internal/models"
	"github.com/codr1/Courtside/internal/slots"
	"github.com/codr1/Courtside/internal/testutil"
)

func date(t *testing.T, value string) slots.Date {
	t.Helper()
	d, err := slots.ParseDate(value)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return d
}

func TestOccurrences(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		weekday  time.Weekday
		want     []string
	}{
		{"all tuesdays in june", "2025-06-01", "2025-06-30", time.Tuesday, []string{"2025-06-03", "2025-06-10", "2025-06-17", "2025-06-24"}},
		{"bounds are inclusive", "2025-06-03", "2025-06-17", time.Tuesday, []string{"2025-06-03", "2025-06-10", "2025-06-17"}},
		{"sunday wraps the week", "2025-06-02", "2025-06-16", time.Sunday, []string{"2025-06-08", "2025-06-15"}},
		{"no matching day", "2025-06-03", "2025-06-05", time.Saturday, nil},
		{"reversed range", "2025-06-30", "2025-06-01", time.Tuesday, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Occurrences(date(t, tt.from), date(t, tt.to), tt.weekday)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].String() != tt.want[i] {
					t.Errorf("occurrence %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

type fixture struct {
	db      *db.DB
	engine  *Engine
	now     time.Time
	org     models.Organization
	courtID int64
	userID  int64
	admin   booking.Principal
}

func newFixture(t *testing.T, timezone string, now time.Time) *fixture {
	t.Helper()

	database := testutil.NewTestDB(t)
	orgID, slug := testutil.SeedOrganization(t, database, testutil.OrgOptions{Timezone: timezone})
	courtID := testutil.SeedCourt(t, database, orgID, testutil.CourtOptions{Name: "Centre", BasePriceCents: 2000})
	adminID := testutil.SeedUser(t, database, orgID, "admin", true)
	userID := testutil.SeedUser(t, database, orgID, "member", true)

	org, err := models.LoadOrganizationBySlug(context.Background(), database.Queries, slug, config.DefaultBooking())
	if err != nil {
		t.Fatalf("load organization: %v", err)
	}
	f := &fixture{
		db:      database,
		now:     now,
		org:     org,
		courtID: courtID,
		userID:  userID,
		admin:   booking.Principal{User: &booking.User{ID: adminID, EmailVerified: true, IsAdmin: true}},
	}
	f.engine, err = NewEngine(booking.DBTransactor{DB: database}, database.Queries, audit.NewRecorder(database.Queries), nil, func() time.Time { return f.now })
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return f
}

func (f *fixture) tuesdays(t *testing.T, from, to string) Request {
	return Request{
		CourtID:   f.courtID,
		Title:     "Ladder night",
		DayOfWeek: int(time.Tuesday),
		StartTime: "10:00",
		EndTime:   "11:00",
		StartsOn:  date(t, from),
		EndsOn:    date(t, to),
	}
}

func TestCreate_SkipAccounting(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()

	// Overlaps the 10 June occurrence.
	testutil.SeedConfirmedBooking(t, f.db, f.org.ID, f.courtID, f.userID,
		time.Date(2025, time.June, 10, 10, 30, 0, 0, time.UTC), time.Date(2025, time.June, 10, 11, 30, 0, 0, time.UTC))
	// Blocks the 24 June occurrence.
	testutil.SeedBlock(t, f.db, f.courtID,
		time.Date(2025, time.June, 24, 9, 0, 0, 0, time.UTC), time.Date(2025, time.June, 24, 12, 0, 0, 0, time.UTC))

	res, err := f.engine.Create(ctx, f.org, f.admin, f.tuesdays(t, "2025-06-01", "2025-06-30"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Created != 2 || res.Skipped != 2 {
		t.Fatalf("expected 2 created and 2 skipped, got %d and %d", res.Created, res.Skipped)
	}
	wantSkips := map[string]string{"2025-06-10": SkipBooked, "2025-06-24": SkipBlocked}
	for _, s := range res.SkipDates {
		if wantSkips[s.Date.String()] != s.Reason {
			t.Errorf("unexpected skip %s (%s)", s.Date, s.Reason)
		}
	}

	for _, id := range res.BookingIDs {
		row, err := f.db.Queries.GetBooking(ctx, id)
		if err != nil {
			t.Fatalf("load booking: %v", err)
		}
		b := models.BookingFromRow(row)
		if b.Status != models.StatusConfirmed || !b.IsAdminOverride || b.TotalPriceCents != 0 || b.ExpiresAt != nil {
			t.Errorf("unexpected occurrence booking: %+v", b)
		}
		if b.RecurringBookingID == nil || *b.RecurringBookingID != res.Recurring.ID {
			t.Errorf("occurrence not linked to its series: %+v", b.RecurringBookingID)
		}
	}

	if n := testutil.CountRows(t, f.db, "bookings"); n != 3 {
		t.Errorf("expected 3 bookings including the seeded one, got %d", n)
	}
	if n := testutil.CountRows(t, f.db, "booking_slots"); n != 3 {
		t.Errorf("expected 3 slots, got %d", n)
	}
	if n := testutil.CountRows(t, f.db, "payments"); n != 0 {
		t.Errorf("admin occurrences take no payment, got %d payments", n)
	}
	if !res.Recurring.IsActive || res.Recurring.StartTime != "10:00" || res.Recurring.DayOfWeek != 2 {
		t.Errorf("unexpected pattern: %+v", res.Recurring)
	}
}

func TestCreate_SkipsPastOccurrences(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC))

	res, err := f.engine.Create(context.Background(), f.org, f.admin, f.tuesdays(t, "2025-05-15", "2025-06-12"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// 20 and 27 May are past; 3 and 10 June are booked.
	if res.Created != 2 || res.Skipped != 2 {
		t.Fatalf("expected 2 created and 2 skipped, got %d and %d", res.Created, res.Skipped)
	}
	for _, s := range res.SkipDates {
		if s.Reason != SkipPast {
			t.Errorf("expected past skip, got %s on %s", s.Reason, s.Date)
		}
	}
}

func TestCreate_UsesOrganizationZoneAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	f := newFixture(t, "America/New_York", time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	res, err := f.engine.Create(ctx, f.org, f.admin, Request{
		CourtID:   f.courtID,
		Title:     "Sunday clinic",
		DayOfWeek: int(time.Sunday),
		StartTime: "09:00",
		EndTime:   "10:00",
		StartsOn:  date(t, "2025-03-02"),
		EndsOn:    date(t, "2025-03-09"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Created != 2 {
		t.Fatalf("expected 2 occurrences, got %d", res.Created)
	}

	wantUTC := []time.Time{
		time.Date(2025, time.March, 2, 14, 0, 0, 0, time.UTC), // EST
		time.Date(2025, time.March, 9, 13, 0, 0, 0, time.UTC), // EDT
	}
	for i, id := range res.BookingIDs {
		slotRows, err := f.db.Queries.ListBookingSlots(ctx, id)
		if err != nil || len(slotRows) != 1 {
			t.Fatalf("load slots: %v (%d rows)", err, len(slotRows))
		}
		if !slotRows[0].StartTime.Equal(wantUTC[i]) {
			t.Errorf("occurrence %d starts %s, want %s", i, slotRows[0].StartTime.UTC(), wantUTC[i])
		}
		if local := slotRows[0].StartTime.In(ny); local.Hour() != 9 {
			t.Errorf("occurrence %d starts at local hour %d", i, local.Hour())
		}
	}
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC))
	otherOrg, _ := testutil.SeedOrganization(t, f.db, testutil.OrgOptions{})
	foreignCourt := testutil.SeedCourt(t, f.db, otherOrg, testutil.CourtOptions{})
	member := booking.Principal{User: &booking.User{ID: f.userID, EmailVerified: true}}

	base := f.tuesdays(t, "2025-06-01", "2025-06-30")
	tests := []struct {
		name   string
		p      booking.Principal
		mutate func(r *Request)
		want   booking.Code
	}{
		{"member", member, func(r *Request) {}, booking.CodeForbidden},
		{"anonymous", booking.Principal{}, func(r *Request) {}, booking.CodeNotAuthenticated},
		{"end before start", f.admin, func(r *Request) { r.EndTime = "09:00" }, booking.CodeValidation},
		{"zero length", f.admin, func(r *Request) { r.EndTime = "10:00" }, booking.CodeValidation},
		{"bad time", f.admin, func(r *Request) { r.StartTime = "25:00" }, booking.CodeValidation},
		{"same dates", f.admin, func(r *Request) { r.EndsOn = r.StartsOn }, booking.CodeValidation},
		{"bad weekday", f.admin, func(r *Request) { r.DayOfWeek = 7 }, booking.CodeValidation},
		{"blank title", f.admin, func(r *Request) { r.Title = "   " }, booking.CodeValidation},
		{"foreign court", f.admin, func(r *Request) { r.CourtID = foreignCourt }, booking.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := f.engine.Create(context.Background(), f.org, tt.p, req)
			if got := booking.CodeOf(err); err == nil || got != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
		})
	}
	if n := testutil.CountRows(t, f.db, "recurring_bookings"); n != 0 {
		t.Errorf("rejected patterns left %d rows", n)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()

	res, err := f.engine.Create(ctx, f.org, f.admin, f.tuesdays(t, "2025-06-01", "2025-06-30"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Created != 4 {
		t.Fatalf("expected 4 occurrences, got %d", res.Created)
	}

	// 3 and 10 June have been played by now.
	f.now = time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
	out, err := f.engine.Cancel(ctx, f.org, f.admin, res.Recurring.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if out.Cancelled != 2 || out.Recurring.IsActive {
		t.Fatalf("expected 2 cancelled and an inactive pattern, got %+v", out)
	}

	statuses := map[models.BookingStatus]int{}
	for _, id := range res.BookingIDs {
		row, err := f.db.Queries.GetBooking(ctx, id)
		if err != nil {
			t.Fatalf("load booking: %v", err)
		}
		statuses[models.BookingStatus(row.Status)]++
		if row.Status == string(models.StatusCancelled) && row.CancelReason.String != booking.ReasonRecurringCancelled {
			t.Errorf("unexpected cancel reason %q", row.CancelReason.String)
		}
	}
	if statuses[models.StatusConfirmed] != 2 || statuses[models.StatusCancelled] != 2 {
		t.Errorf("unexpected statuses: %v", statuses)
	}

	again, err := f.engine.Cancel(ctx, f.org, f.admin, res.Recurring.ID)
	if err != nil || again.Cancelled != 0 {
		t.Fatalf("second cancel should be a no-op, got %+v, %v", again, err)
	}

	_, err = f.engine.Cancel(ctx, f.org, f.admin, 999999)
	if booking.CodeOf(err) != booking.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestList(t *testing.T) {
	f := newFixture(t, "UTC", time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := f.engine.Create(ctx, f.org, f.admin, f.tuesdays(t, "2025-06-01", "2025-06-30")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	list, err := f.engine.List(ctx, f.org, f.admin)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Ladder night" {
		t.Fatalf("unexpected list: %+v", list)
	}
}
