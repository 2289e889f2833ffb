// Package apitest wires handlers behind the organization and identity
// middleware over a migrated test database.
package apitest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/codr1/Courtside/internal/api"
	"github.com/codr1/Courtside/internal/api/apiutil"
	"github.com/codr1/Courtside/internal/api/authz"
	"github.com/codr1/Courtside/internal/booking"
	"github.com/codr1/Courtside/internal/config"
	"github.com/codr1/Courtside/internal/db"
	"github.com/codr1/Courtside/internal/testutil"
)

// Now is Monday 2 June 2025, 08:00 UTC.
var Now = time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type Harness struct {
	t        *testing.T
	DB       *db.DB
	Mux      *http.ServeMux
	Clock    *Clock
	Service  *booking.Service
	Defaults config.BookingConfig

	OrgID   int64
	Slug    string
	CourtID int64
	// MemberID is a verified member, AdminID administers the organization.
	MemberID int64
	AdminID  int64
}

// New seeds an organization with one court at 2000 cents per slot and a
// booking service on a fixed clock.
func New(t *testing.T, opts testutil.OrgOptions) *Harness {
	t.Helper()

	database := testutil.NewTestDB(t)
	orgID, slug := testutil.SeedOrganization(t, database, opts)
	courtID := testutil.SeedCourt(t, database, orgID, testutil.CourtOptions{Name: "Centre", BasePriceCents: 2000})

	clock := &Clock{now: Now}
	defaults := config.DefaultBooking()
	return &Harness{
		t:        t,
		DB:       database,
		Mux:      http.NewServeMux(),
		Clock:    clock,
		Service:  booking.NewFromDB(database, defaults, clock.Now),
		Defaults: defaults,
		OrgID:    orgID,
		Slug:     slug,
		CourtID:  courtID,
		MemberID: testutil.SeedUser(t, database, orgID, "member", true),
		AdminID:  testutil.SeedUser(t, database, orgID, authz.RoleAdmin, true),
	}
}

// Handle registers h behind the organization and identity middleware, and
// behind the admin check when admin is set.
func (h *Harness) Handle(pattern string, handler http.HandlerFunc, admin bool) {
	chain := []api.Middleware{api.WithIdentity(h.DB.Queries), api.WithOrganization(h.DB.Queries, h.Defaults)}
	if admin {
		chain = append([]api.Middleware{api.WithAdmin}, chain...)
	}
	h.Mux.Handle(pattern, api.ChainMiddleware(handler, chain...))
}

// Request is one call through the mux.
type Request struct {
	Method  string
	Path    string
	Body    any
	UserID  int64
	Headers map[string]string
}

func (h *Harness) Do(req Request) *httptest.ResponseRecorder {
	h.t.Helper()

	var body bytes.Buffer
	if req.Body != nil {
		if raw, ok := req.Body.(string); ok {
			body.WriteString(raw)
		} else if err := json.NewEncoder(&body).Encode(req.Body); err != nil {
			h.t.Fatalf("encode request body: %v", err)
		}
	}
	r := httptest.NewRequest(req.Method, req.Path, &body)
	if req.Body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.UserID > 0 {
		r.Header.Set(api.UserIDHeader, strconv.FormatInt(req.UserID, 10))
	}
	for k, v := range req.Headers {
		r.Header.Set(k, v)
	}
	recorder := httptest.NewRecorder()
	h.Mux.ServeHTTP(recorder, r)
	return recorder
}

// OrgPath prefixes suffix with the organization's API root.
func (h *Harness) OrgPath(suffix string) string {
	return "/api/v1/orgs/" + h.Slug + suffix
}

// Decode unmarshals the recorded body into dst.
func Decode(t *testing.T, recorder *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
}

// ExpectError asserts the status and error code of a failed call.
func ExpectError(t *testing.T, recorder *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("status %d, want %d: %s", recorder.Code, status, recorder.Body.String())
	}
	var body apiutil.ErrorResponse
	Decode(t, recorder, &body)
	if body.Error.Code != code {
		t.Fatalf("error code %q, want %q", body.Error.Code, code)
	}
}
