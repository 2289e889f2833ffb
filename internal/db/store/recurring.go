package store

import (
	"context"
	"database/sql"
)

const recurringColumns = `id, organization_id, created_by, court_id, title, day_of_week, start_time, end_time,
	starts_on, ends_on, frequency, notes, is_active, created_at`

type CreateRecurringBookingParams struct {
	OrganizationID int64
	CreatedBy      int64
	CourtID        int64
	Title          string
	DayOfWeek      int64
	StartTime      string
	EndTime        string
	StartsOn       string
	EndsOn         string
	Frequency      string
	Notes          sql.NullString
}

func (q *Queries) CreateRecurringBooking(ctx context.Context, arg CreateRecurringBookingParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO recurring_bookings (organization_id, created_by, court_id, title, day_of_week, start_time,
			end_time, starts_on, ends_on, frequency, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.OrganizationID, arg.CreatedBy, arg.CourtID, arg.Title, arg.DayOfWeek, arg.StartTime,
		arg.EndTime, arg.StartsOn, arg.EndsOn, arg.Frequency, arg.Notes,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) GetRecurringBooking(ctx context.Context, organizationID, id int64) (RecurringBooking, error) {
	var rb RecurringBooking
	err := sqlxGet(ctx, q.db, &rb,
		`SELECT `+recurringColumns+` FROM recurring_bookings WHERE id = ? AND organization_id = ?`,
		id, organizationID,
	)
	return rb, err
}

func (q *Queries) ListRecurringBookings(ctx context.Context, organizationID int64) ([]RecurringBooking, error) {
	var rows []RecurringBooking
	err := sqlxSelect(ctx, q.db, &rows,
		`SELECT `+recurringColumns+` FROM recurring_bookings WHERE organization_id = ? ORDER BY created_at DESC, id DESC`,
		organizationID,
	)
	return rows, err
}

// DeactivateRecurringBooking reports whether the pattern was active before the call.
func (q *Queries) DeactivateRecurringBooking(ctx context.Context, organizationID, id int64) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE recurring_bookings SET is_active = 0 WHERE id = ? AND organization_id = ? AND is_active = 1`,
		id, organizationID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
