package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/codr1/Courtside/internal/config"
	"github.com/codr1/Courtside/internal/db"
	"github.com/codr1/Courtside/internal/db/store"
	"github.com/codr1/Courtside/internal/models"
	"github.com/codr1/Courtside/internal/testutil"
)

// Monday 2 June 2025, 08:00 UTC.
var baseNow = time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

// tuesday returns hour:00 UTC on Tuesday 3 June 2025.
func tuesday(hour int) time.Time {
	return time.Date(2025, time.June, 3, hour, 0, 0, 0, time.UTC)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	t       *testing.T
	db      *db.DB
	svc     *Service
	clock   *testClock
	org     models.Organization
	courtID int64
	userID  int64
}

// newFixture seeds an organization with one court priced 2000 off-peak and
// 3000 at peak, and a verified member.
func newFixture(t *testing.T, opts testutil.OrgOptions) *fixture {
	t.Helper()

	database := testutil.NewTestDB(t)
	orgID, slug := testutil.SeedOrganization(t, database, opts)
	peak := int64(3000)
	courtID := testutil.SeedCourt(t, database, orgID, testutil.CourtOptions{Name: "Centre", BasePriceCents: 2000, PeakPriceCents: &peak})
	userID := testutil.SeedUser(t, database, orgID, "member", true)

	clock := &testClock{now: baseNow}
	svc := NewFromDB(database, config.DefaultBooking(), clock.Now)
	svc.tokenCost = bcrypt.MinCost

	org, err := models.LoadOrganizationBySlug(context.Background(), database.Queries, slug, config.DefaultBooking())
	if err != nil {
		t.Fatalf("load organization: %v", err)
	}
	return &fixture{t: t, db: database, svc: svc, clock: clock, org: org, courtID: courtID, userID: userID}
}

func (f *fixture) member() Principal {
	return Principal{User: &User{ID: f.userID, Email: "member@example.com", EmailVerified: true}}
}

func (f *fixture) otherMember() Principal {
	id := testutil.SeedUser(f.t, f.db, f.org.ID, "member", true)
	return Principal{User: &User{ID: id, Email: "other@example.com", EmailVerified: true}}
}

func (f *fixture) admin() Principal {
	id := testutil.SeedUser(f.t, f.db, f.org.ID, "admin", true)
	return Principal{User: &User{ID: id, Email: "admin@example.com", EmailVerified: true, IsAdmin: true}}
}

func (f *fixture) hour(start time.Time) SlotRequest {
	return SlotRequest{CourtID: f.courtID, Start: start, End: start.Add(time.Hour)}
}

func (f *fixture) reserve(p Principal, reqs ...SlotRequest) (Reservation, error) {
	return f.svc.CreateReservation(context.Background(), f.org, p, models.TypeCourtBooking, reqs)
}

func (f *fixture) mustReserve(p Principal, reqs ...SlotRequest) Reservation {
	f.t.Helper()
	res, err := f.reserve(p, reqs...)
	if err != nil {
		f.t.Fatalf("CreateReservation: %v", err)
	}
	return res
}

func (f *fixture) booking(id int64) models.Booking {
	f.t.Helper()
	b, err := loadBooking(context.Background(), f.db.Queries, id)
	if err != nil {
		f.t.Fatalf("load booking %d: %v", id, err)
	}
	return b
}

func (f *fixture) payment(bookingID int64) models.Payment {
	f.t.Helper()
	row, err := f.db.Queries.GetPaymentByBooking(context.Background(), bookingID)
	if err != nil {
		f.t.Fatalf("load payment for booking %d: %v", bookingID, err)
	}
	return models.PaymentFromRow(row)
}

func (f *fixture) auditActions(entityType string, id int64) []string {
	f.t.Helper()
	events, err := f.db.Queries.ListAuditEvents(context.Background(), entityType, id)
	if err != nil {
		f.t.Fatalf("list audit events: %v", err)
	}
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	return actions
}

func assertCode(t *testing.T, err error, want Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := CodeOf(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

// plainTx runs fn directly on q, as on storage without transactions.
type plainTx struct {
	q Querier
}

func (p plainTx) WithinTx(_ context.Context, fn func(q Querier) error) error {
	return fn(p.q)
}

var (
	errInjectedSlot   = errors.New("injected slot write failure")
	errInjectedDelete = errors.New("injected delete failure")
)

// faultyQuerier fails the failOnSlot-th slot insert, and optionally the
// compensating delete.
type faultyQuerier struct {
	Querier
	failOnSlot int
	failDelete bool

	slotCalls int
}

func (f *faultyQuerier) CreateBookingSlot(ctx context.Context, arg store.CreateBookingSlotParams) (int64, error) {
	f.slotCalls++
	if f.slotCalls == f.failOnSlot {
		return 0, errInjectedSlot
	}
	return f.Querier.CreateBookingSlot(ctx, arg)
}

func (f *faultyQuerier) DeleteBooking(ctx context.Context, id int64) error {
	if f.failDelete {
		return errInjectedDelete
	}
	return f.Querier.DeleteBooking(ctx, id)
}
