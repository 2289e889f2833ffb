package store

import (
	"context"
	"database/sql"
	"time"
)

const paymentColumns = `id, booking_id, user_id, amount_cents, currency, status, external_id, redirect_url,
	paid_at, created_at, updated_at`

type CreatePaymentParams struct {
	BookingID   int64
	UserID      sql.NullInt64
	AmountCents int64
	Currency    string
	Status      string
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO payments (booking_id, user_id, amount_cents, currency, status) VALUES (?, ?, ?, ?, ?)`,
		arg.BookingID, arg.UserID, arg.AmountCents, arg.Currency, arg.Status,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) GetPaymentByBooking(ctx context.Context, bookingID int64) (Payment, error) {
	var payment Payment
	err := sqlxGet(ctx, q.db, &payment, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = ?`, bookingID)
	return payment, err
}

func (q *Queries) GetPaymentByExternalID(ctx context.Context, externalID string) (Payment, error) {
	var payment Payment
	err := sqlxGet(ctx, q.db, &payment, `SELECT `+paymentColumns+` FROM payments WHERE external_id = ?`, externalID)
	return payment, err
}

func (q *Queries) SetPaymentGatewayRefs(ctx context.Context, bookingID int64, externalID, redirectURL string, now time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE payments SET external_id = ?, redirect_url = ?, updated_at = ? WHERE booking_id = ?`,
		externalID, NullString(&redirectURL), ts(now), bookingID,
	)
	return err
}

type UpdatePaymentStatusParams struct {
	BookingID    int64
	FromStatuses []string
	ToStatus     string
	ExternalID   sql.NullString
	PaidAt       *time.Time
	UpdatedAt    time.Time
}

// UpdatePaymentStatus is a compare-and-set on the payment status.
func (q *Queries) UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) (bool, error) {
	query, args, err := expandIn(q.db,
		`UPDATE payments
		 SET status = ?, external_id = COALESCE(?, external_id), paid_at = COALESCE(?, paid_at), updated_at = ?
		 WHERE booking_id = ? AND status IN (?)`,
		arg.ToStatus, arg.ExternalID, nullTime(arg.PaidAt), ts(arg.UpdatedAt), arg.BookingID, arg.FromStatuses,
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
