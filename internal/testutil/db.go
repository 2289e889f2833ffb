package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codr1/Courtside/internal/db"
	"github.com/codr1/Courtside/internal/db/store"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

var seq atomic.Int64

type OrgOptions struct {
	Timezone           string
	Currency           string
	AllowGuestBookings bool
}

// SeedOrganization inserts an organization with a unique slug and returns its id and slug.
func SeedOrganization(t *testing.T, database *db.DB, opts OrgOptions) (int64, string) {
	t.Helper()

	if opts.Timezone == "" {
		opts.Timezone = "UTC"
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	n := seq.Add(1)
	slug := fmt.Sprintf("club-%d", n)
	id, err := database.Queries.CreateOrganization(context.Background(), store.CreateOrganizationParams{
		Name:               fmt.Sprintf("Club %d", n),
		Slug:               slug,
		Timezone:           opts.Timezone,
		Currency:           opts.Currency,
		AllowGuestBookings: opts.AllowGuestBookings,
	})
	if err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	return id, slug
}

type CourtOptions struct {
	Name                string
	OpenTime            string
	CloseTime           string
	SlotDurationMinutes int64
	BasePriceCents      int64
	PeakPriceCents      *int64
	Inactive            bool
}

// SeedCourt inserts a court open 08:00-22:00 with hourly slots unless overridden.
func SeedCourt(t *testing.T, database *db.DB, orgID int64, opts CourtOptions) int64 {
	t.Helper()

	if opts.Name == "" {
		opts.Name = fmt.Sprintf("Court %d", seq.Add(1))
	}
	if opts.OpenTime == "" {
		opts.OpenTime = "08:00"
	}
	if opts.CloseTime == "" {
		opts.CloseTime = "22:00"
	}
	if opts.SlotDurationMinutes == 0 {
		opts.SlotDurationMinutes = 60
	}
	ctx := context.Background()
	id, err := database.Queries.CreateCourt(ctx, store.CreateCourtParams{
		OrganizationID:      orgID,
		Name:                opts.Name,
		IsActive:            true,
		OpenTime:            opts.OpenTime,
		CloseTime:           opts.CloseTime,
		SlotDurationMinutes: opts.SlotDurationMinutes,
		BasePriceCents:      opts.BasePriceCents,
		PeakPriceCents:      store.NullInt64(opts.PeakPriceCents),
	})
	if err != nil {
		t.Fatalf("seed court: %v", err)
	}
	if opts.Inactive {
		if err := database.Queries.SetCourtActive(ctx, id, false); err != nil {
			t.Fatalf("deactivate court: %v", err)
		}
	}
	return id
}

// SeedUser inserts a user and, when role is non-empty, an organization membership.
func SeedUser(t *testing.T, database *db.DB, orgID int64, role string, verified bool) int64 {
	t.Helper()

	ctx := context.Background()
	n := seq.Add(1)
	id, err := database.Queries.CreateUser(ctx, store.CreateUserParams{
		Email:         fmt.Sprintf("player%d@example.com", n),
		Name:          fmt.Sprintf("Player %d", n),
		EmailVerified: verified,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if role != "" {
		if err := database.Queries.AddOrganizationMember(ctx, orgID, id, role); err != nil {
			t.Fatalf("seed membership: %v", err)
		}
	}
	return id
}

// SeedConfirmedBooking inserts a CONFIRMED booking holding one slot.
func SeedConfirmedBooking(t *testing.T, database *db.DB, orgID, courtID, userID int64, start, end time.Time) int64 {
	t.Helper()

	ctx := context.Background()
	bookingID, err := database.Queries.CreateBooking(ctx, store.CreateBookingParams{
		OrganizationID:  orgID,
		UserID:          sql.NullInt64{Int64: userID, Valid: userID > 0},
		Type:            "COURT_BOOKING",
		TotalPriceCents: 0,
		Currency:        "USD",
		Status:          "CONFIRMED",
	})
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	if _, err := database.Queries.CreateBookingSlot(ctx, store.CreateBookingSlotParams{
		BookingID: bookingID,
		CourtID:   courtID,
		StartTime: start,
		EndTime:   end,
	}); err != nil {
		t.Fatalf("seed booking slot: %v", err)
	}
	return bookingID
}

// SeedBlock inserts a maintenance block.
func SeedBlock(t *testing.T, database *db.DB, courtID int64, start, end time.Time) int64 {
	t.Helper()

	block, err := database.Queries.CreateCourtBlock(context.Background(), store.CreateCourtBlockParams{
		CourtID:   courtID,
		StartTime: start,
		EndTime:   end,
		Reason:    "MAINTENANCE",
	})
	if err != nil {
		t.Fatalf("seed block: %v", err)
	}
	return block.ID
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, database *db.DB, table string) int {
	t.Helper()

	var n int
	if err := database.Get(&n, "SELECT COUNT(*) FROM "+table); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
