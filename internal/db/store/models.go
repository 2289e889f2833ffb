// Package store holds the typed row records and hand-written queries for the
// booking schema. Nullable columns are sql.Null* here; domain packages convert
// them to optional fields.
package store

import (
	"database/sql"
	"time"
)

type Organization struct {
	ID                 int64     `db:"id"`
	Name               string    `db:"name"`
	Slug               string    `db:"slug"`
	Timezone           string    `db:"timezone"`
	Currency           string    `db:"currency"`
	AllowGuestBookings bool      `db:"allow_guest_bookings"`
	CreatedAt          time.Time `db:"created_at"`
}

type AppSetting struct {
	OrganizationID int64     `db:"organization_id"`
	Key            string    `db:"key"`
	Value          string    `db:"value"`
	UpdatedAt      time.Time `db:"updated_at"`
}

type User struct {
	ID            int64     `db:"id"`
	Email         string    `db:"email"`
	Name          string    `db:"name"`
	EmailVerified bool      `db:"email_verified"`
	CreatedAt     time.Time `db:"created_at"`
}

type Court struct {
	ID                  int64         `db:"id"`
	OrganizationID      int64         `db:"organization_id"`
	Name                string        `db:"name"`
	IsActive            bool          `db:"is_active"`
	IsIndoor            bool          `db:"is_indoor"`
	OpenTime            string        `db:"open_time"`
	CloseTime           string        `db:"close_time"`
	SlotDurationMinutes int64         `db:"slot_duration_minutes"`
	BasePriceCents      int64         `db:"base_price_cents"`
	PeakPriceCents      sql.NullInt64 `db:"peak_price_cents"`
	SortOrder           int64         `db:"sort_order"`
	CreatedAt           time.Time     `db:"created_at"`
}

type CourtBlock struct {
	ID          int64          `db:"id"`
	CourtID     int64          `db:"court_id"`
	StartTime   time.Time      `db:"start_time"`
	EndTime     time.Time      `db:"end_time"`
	Reason      string         `db:"reason"`
	Description sql.NullString `db:"description"`
	CreatedBy   sql.NullInt64  `db:"created_by"`
	CreatedAt   time.Time      `db:"created_at"`
}

type Guest struct {
	ID             int64          `db:"id"`
	OrganizationID int64          `db:"organization_id"`
	Name           string         `db:"name"`
	Email          string         `db:"email"`
	Phone          sql.NullString `db:"phone"`
	TokenHash      string         `db:"token_hash"`
	CreatedAt      time.Time      `db:"created_at"`
}

type Booking struct {
	ID                 int64          `db:"id"`
	OrganizationID     int64          `db:"organization_id"`
	UserID             sql.NullInt64  `db:"user_id"`
	GuestID            sql.NullInt64  `db:"guest_id"`
	Type               string         `db:"type"`
	TotalPriceCents    int64          `db:"total_price_cents"`
	Currency           string         `db:"currency"`
	Status             string         `db:"status"`
	ExpiresAt          sql.NullTime   `db:"expires_at"`
	IsAdminOverride    bool           `db:"is_admin_override"`
	AdminNotes         sql.NullString `db:"admin_notes"`
	CancelledAt        sql.NullTime   `db:"cancelled_at"`
	CancelReason       sql.NullString `db:"cancel_reason"`
	RecurringBookingID sql.NullInt64  `db:"recurring_booking_id"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

type BookingSlot struct {
	ID         int64     `db:"id"`
	BookingID  int64     `db:"booking_id"`
	CourtID    int64     `db:"court_id"`
	StartTime  time.Time `db:"start_time"`
	EndTime    time.Time `db:"end_time"`
	PriceCents int64     `db:"price_cents"`
}

// OccupiedSlot is a slot interval held by a booking that still occupies inventory.
type OccupiedSlot struct {
	BookingID int64     `db:"booking_id"`
	CourtID   int64     `db:"court_id"`
	StartTime time.Time `db:"start_time"`
	EndTime   time.Time `db:"end_time"`
	Status    string    `db:"status"`
}

type Payment struct {
	ID          int64          `db:"id"`
	BookingID   int64          `db:"booking_id"`
	UserID      sql.NullInt64  `db:"user_id"`
	AmountCents int64          `db:"amount_cents"`
	Currency    string         `db:"currency"`
	Status      string         `db:"status"`
	ExternalID  sql.NullString `db:"external_id"`
	RedirectURL sql.NullString `db:"redirect_url"`
	PaidAt      sql.NullTime   `db:"paid_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

type RecurringBooking struct {
	ID             int64          `db:"id"`
	OrganizationID int64          `db:"organization_id"`
	CreatedBy      int64          `db:"created_by"`
	CourtID        int64          `db:"court_id"`
	Title          string         `db:"title"`
	DayOfWeek      int64          `db:"day_of_week"`
	StartTime      string         `db:"start_time"`
	EndTime        string         `db:"end_time"`
	StartsOn       string         `db:"starts_on"`
	EndsOn         string         `db:"ends_on"`
	Frequency      string         `db:"frequency"`
	Notes          sql.NullString `db:"notes"`
	IsActive       bool           `db:"is_active"`
	CreatedAt      time.Time      `db:"created_at"`
}

type AuditEvent struct {
	ID             int64          `db:"id"`
	OrganizationID int64          `db:"organization_id"`
	ActorID        sql.NullInt64  `db:"actor_id"`
	Action         string         `db:"action"`
	EntityType     string         `db:"entity_type"`
	EntityID       int64          `db:"entity_id"`
	BeforeState    sql.NullString `db:"before_state"`
	AfterState     sql.NullString `db:"after_state"`
	CreatedAt      time.Time      `db:"created_at"`
}
