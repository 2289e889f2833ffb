package store

import (
	"context"
	"database/sql"
	"time"
)

const bookingColumns = `id, organization_id, user_id, guest_id, type, total_price_cents, currency, status,
	expires_at, is_admin_override, admin_notes, cancelled_at, cancel_reason, recurring_booking_id,
	created_at, updated_at`

// Statuses that no longer hold inventory. Kept in sync with the overlap trigger.
const releasedStatusesSQL = `('CANCELLED', 'EXPIRED')`

type CreateBookingParams struct {
	OrganizationID     int64
	UserID             sql.NullInt64
	GuestID            sql.NullInt64
	Type               string
	TotalPriceCents    int64
	Currency           string
	Status             string
	ExpiresAt          *time.Time
	IsAdminOverride    bool
	AdminNotes         sql.NullString
	RecurringBookingID sql.NullInt64
}

func (q *Queries) CreateBooking(ctx context.Context, arg CreateBookingParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO bookings (organization_id, user_id, guest_id, type, total_price_cents, currency, status,
			expires_at, is_admin_override, admin_notes, recurring_booking_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.OrganizationID, arg.UserID, arg.GuestID, arg.Type, arg.TotalPriceCents, arg.Currency, arg.Status,
		nullTime(arg.ExpiresAt), arg.IsAdminOverride, arg.AdminNotes, arg.RecurringBookingID,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) GetBooking(ctx context.Context, id int64) (Booking, error) {
	var booking Booking
	err := sqlxGet(ctx, q.db, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	return booking, err
}

// DeleteBooking removes a booking row and, through ON DELETE CASCADE, its
// slots and payment. Only used to clean up a failed reservation attempt.
func (q *Queries) DeleteBooking(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	return err
}

type CreateBookingSlotParams struct {
	BookingID  int64
	CourtID    int64
	StartTime  time.Time
	EndTime    time.Time
	PriceCents int64
}

// CreateBookingSlot returns ErrSlotConflict when the overlap trigger fires.
func (q *Queries) CreateBookingSlot(ctx context.Context, arg CreateBookingSlotParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO booking_slots (booking_id, court_id, start_time, end_time, price_cents) VALUES (?, ?, ?, ?, ?)`,
		arg.BookingID, arg.CourtID, ts(arg.StartTime), ts(arg.EndTime), arg.PriceCents,
	)
	if err != nil {
		return 0, translateError(err)
	}
	return res.LastInsertId()
}

func (q *Queries) ListBookingSlots(ctx context.Context, bookingID int64) ([]BookingSlot, error) {
	var slots []BookingSlot
	err := sqlxSelect(ctx, q.db, &slots,
		`SELECT id, booking_id, court_id, start_time, end_time, price_cents
		 FROM booking_slots WHERE booking_id = ? ORDER BY start_time ASC, court_id ASC`,
		bookingID,
	)
	return slots, err
}

// CountActiveOverlaps counts slots on the court overlapping [start, end) whose
// booking still holds inventory.
func (q *Queries) CountActiveOverlaps(ctx context.Context, courtID int64, start, end time.Time) (int64, error) {
	var count int64
	err := sqlxGet(ctx, q.db, &count,
		`SELECT COUNT(*)
		 FROM booking_slots s
		 JOIN bookings b ON b.id = s.booking_id
		 WHERE s.court_id = ?
		   AND b.status NOT IN `+releasedStatusesSQL+`
		   AND s.start_time < ?
		   AND s.end_time > ?`,
		courtID, ts(end), ts(start),
	)
	return count, err
}

// CountHoldingOverlaps is CountActiveOverlaps restricted to CONFIRMED and
// PENDING_PAYMENT bookings.
func (q *Queries) CountHoldingOverlaps(ctx context.Context, courtID int64, start, end time.Time) (int64, error) {
	var count int64
	err := sqlxGet(ctx, q.db, &count,
		`SELECT COUNT(*)
		 FROM booking_slots s
		 JOIN bookings b ON b.id = s.booking_id
		 WHERE s.court_id = ?
		   AND b.status IN ('CONFIRMED', 'PENDING_PAYMENT')
		   AND s.start_time < ?
		   AND s.end_time > ?`,
		courtID, ts(end), ts(start),
	)
	return count, err
}

// ListOccupiedSlots returns the organization's slots overlapping [start, end)
// that still hold inventory.
func (q *Queries) ListOccupiedSlots(ctx context.Context, organizationID int64, start, end time.Time) ([]OccupiedSlot, error) {
	var slots []OccupiedSlot
	err := sqlxSelect(ctx, q.db, &slots,
		`SELECT s.booking_id, s.court_id, s.start_time, s.end_time, b.status
		 FROM booking_slots s
		 JOIN bookings b ON b.id = s.booking_id
		 WHERE b.organization_id = ?
		   AND b.status NOT IN `+releasedStatusesSQL+`
		   AND s.start_time < ?
		   AND s.end_time > ?
		 ORDER BY s.court_id ASC, s.start_time ASC`,
		organizationID, ts(end), ts(start),
	)
	return slots, err
}

type TransitionBookingParams struct {
	ID           int64
	FromStatuses []string
	ToStatus     string
	ExpiresAt    *time.Time
	CancelledAt  *time.Time
	CancelReason sql.NullString
	UpdatedAt    time.Time
}

// TransitionBooking moves a booking to ToStatus only if its current status is
// one of FromStatuses. It reports whether the row changed, which lets callers
// treat a lost race as a no-op.
func (q *Queries) TransitionBooking(ctx context.Context, arg TransitionBookingParams) (bool, error) {
	query, args, err := expandIn(q.db,
		`UPDATE bookings
		 SET status = ?, expires_at = ?, cancelled_at = COALESCE(?, cancelled_at),
		     cancel_reason = COALESCE(?, cancel_reason), updated_at = ?
		 WHERE id = ? AND status IN (?)`,
		arg.ToStatus, nullTime(arg.ExpiresAt), nullTime(arg.CancelledAt), arg.CancelReason, ts(arg.UpdatedAt),
		arg.ID, arg.FromStatuses,
	)
	if err != nil {
		return false, err
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListDuePendingBookings returns ids of PENDING_PAYMENT bookings whose deadline passed.
func (q *Queries) ListDuePendingBookings(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := sqlxSelect(ctx, q.db, &ids,
		`SELECT id FROM bookings
		 WHERE status = 'PENDING_PAYMENT' AND expires_at < ?
		 ORDER BY expires_at ASC
		 LIMIT ?`,
		ts(now), limit,
	)
	return ids, err
}

// ListUpcomingRecurringBookings returns ids of bookings generated by the
// pattern whose first slot starts after now and that are not yet released.
func (q *Queries) ListUpcomingRecurringBookings(ctx context.Context, recurringID int64, now time.Time) ([]int64, error) {
	var ids []int64
	err := sqlxSelect(ctx, q.db, &ids,
		`SELECT b.id
		 FROM bookings b
		 WHERE b.recurring_booking_id = ?
		   AND b.status IN ('CONFIRMED', 'PENDING_PAYMENT')
		   AND (SELECT MIN(s.start_time) FROM booking_slots s WHERE s.booking_id = b.id) > ?
		 ORDER BY b.id ASC`,
		recurringID, ts(now),
	)
	return ids, err
}

func (q *Queries) CountBookingsForRecurring(ctx context.Context, recurringID int64) (int64, error) {
	var count int64
	err := sqlxGet(ctx, q.db, &count, `SELECT COUNT(*) FROM bookings WHERE recurring_booking_id = ?`, recurringID)
	return count, err
}
