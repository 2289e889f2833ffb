package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/audit"
	"github.com/codr1/Courtside/internal/db/store"
	"github.com/codr1/Courtside/internal/events"
	"github.com/codr1/Courtside/internal/models"
	"github.com/codr1/Courtside/internal/payments"
)

// Cancel reasons written by the system.
const (
	ReasonPaymentTimeout     = "payment_timeout"
	ReasonRecurringCancelled = "recurring series cancelled"
)

var (
	holdingStatuses = []string{string(models.StatusPendingPayment), string(models.StatusConfirmed)}
	openPayments    = []string{string(models.PaymentPending), string(models.PaymentFailed)}
)

// BookingView is a booking as its owner or an administrator sees it.
type BookingView struct {
	Booking          models.Booking  `json:"booking"`
	Payment          *models.Payment `json:"payment,omitempty"`
	ExpiresInSeconds int64           `json:"expiresInSeconds"`
}

// ExpireIfDue moves a PENDING_PAYMENT booking whose deadline has passed to
// EXPIRED. It is a no-op for every other booking, so the sweep and read paths
// may both call it any number of times.
func (s *Service) ExpireIfDue(ctx context.Context, bookingID int64) (bool, error) {
	now := s.clock()
	var (
		expired bool
		before  models.BookingStatus
		orgID   int64
	)
	err := s.tx.WithinTx(ctx, func(q Querier) error {
		row, err := q.GetBooking(ctx, bookingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return newError(CodeNotFound, "booking not found")
			}
			return err
		}
		before = models.BookingStatus(row.Status)
		orgID = row.OrganizationID
		if before != models.StatusPendingPayment || !row.ExpiresAt.Valid || !now.After(row.ExpiresAt.Time) {
			return nil
		}

		expired, err = q.TransitionBooking(ctx, store.TransitionBookingParams{
			ID:           bookingID,
			FromStatuses: []string{string(models.StatusPendingPayment)},
			ToStatus:     string(models.StatusExpired),
			CancelledAt:  &now,
			CancelReason: sql.NullString{String: ReasonPaymentTimeout, Valid: true},
			UpdatedAt:    now,
		})
		if err != nil || !expired {
			return err
		}
		_, err = q.UpdatePaymentStatus(ctx, store.UpdatePaymentStatusParams{
			BookingID:    bookingID,
			FromStatuses: openPayments,
			ToStatus:     string(models.PaymentExpired),
			UpdatedAt:    now,
		})
		return err
	})
	if err != nil {
		return false, Translate(err, "expire booking")
	}
	if !expired {
		return false, nil
	}

	log.Ctx(ctx).Info().Int64("booking_id", bookingID).Msg("Pending booking expired")
	s.audit.RecordOrLog(ctx, audit.Event{
		OrganizationID: orgID,
		Action:         audit.ActionBookingExpired,
		EntityType:     audit.EntityBooking,
		EntityID:       bookingID,
		Before:         map[string]string{"status": string(before)},
		After:          map[string]string{"status": string(models.StatusExpired), "reason": ReasonPaymentTimeout},
	})
	s.publish(ctx, events.BookingExpired, events.BookingEvent{
		BookingID:      bookingID,
		OrganizationID: orgID,
		Status:         string(models.StatusExpired),
		Reason:         ReasonPaymentTimeout,
	})
	return true, nil
}

// ExpireDue sweeps up to limit overdue pending bookings and returns how many
// expired. A failure on one booking is logged and the sweep continues.
func (s *Service) ExpireDue(ctx context.Context, limit int) (int, error) {
	ids, err := s.queries.ListDuePendingBookings(ctx, s.clock(), limit)
	if err != nil {
		return 0, Translate(err, "list due bookings")
	}
	count := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		expired, err := s.ExpireIfDue(ctx, id)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Int64("booking_id", id).Msg("Failed to expire booking")
			continue
		}
		if expired {
			count++
		}
	}
	return count, nil
}

// Cancel releases a booking on behalf of its owner, a guest holding the manage
// token, or an administrator. Administrators cancelling someone else's booking
// must give a reason. Cancelling an already cancelled booking is a no-op.
func (s *Service) Cancel(ctx context.Context, org models.Organization, p Principal, bookingID int64, reason string) (models.Booking, error) {
	if _, err := s.ExpireIfDue(ctx, bookingID); err != nil {
		return models.Booking{}, err
	}
	b, err := s.bookingInOrg(ctx, org, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if err := s.authorizeAccess(ctx, p, b); err != nil {
		return models.Booking{}, err
	}
	reason = strings.TrimSpace(reason)
	if p.isAdmin() && !b.OwnedBy(p.User.ID) && reason == "" {
		return models.Booking{}, validationf("a reason is required when an administrator cancels a booking")
	}
	if b.Status == models.StatusCancelled {
		return b, nil
	}
	if !models.CanTransition(b.Status, models.StatusCancelled) {
		return models.Booking{}, newError(CodeInvalidTransition, fmt.Sprintf("a %s booking cannot be cancelled", strings.ToLower(string(b.Status))))
	}
	if reason == "" {
		reason = "cancelled by customer"
	}

	now := s.clock()
	err = s.tx.WithinTx(ctx, func(q Querier) error {
		ok, err := CancelWithin(ctx, q, bookingID, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return newError(CodeInvalidTransition, "the booking changed state, reload and try again")
		}
		return nil
	})
	if err != nil {
		return models.Booking{}, Translate(err, "cancel booking")
	}

	after, err := loadBooking(ctx, s.queries, bookingID)
	if err != nil {
		return models.Booking{}, Translate(err, "load booking")
	}
	log.Ctx(ctx).Info().
		Int64("booking_id", bookingID).
		Str("from_status", string(b.Status)).
		Msg("Booking cancelled")

	s.audit.RecordOrLog(ctx, audit.Event{
		OrganizationID: org.ID,
		ActorID:        p.actorID(),
		Action:         audit.ActionBookingCancelled,
		EntityType:     audit.EntityBooking,
		EntityID:       bookingID,
		Before:         b,
		After:          after,
	})
	s.publish(ctx, events.BookingCancelled, bookingEvent(after, reason))
	if s.notifier != nil {
		if recipient := s.recipientFor(ctx, after); recipient != "" {
			s.notifier.SendBookingCancellation(ctx, recipient, bookingDetails(org, after, reason))
		}
	}
	return after, nil
}

// CancelWithin moves a PENDING_PAYMENT or CONFIRMED booking to CANCELLED on
// q and expires its open payment. It reports false when the booking no longer
// holds its slots.
func CancelWithin(ctx context.Context, q Querier, bookingID int64, reason string, now time.Time) (bool, error) {
	ok, err := q.TransitionBooking(ctx, store.TransitionBookingParams{
		ID:           bookingID,
		FromStatuses: holdingStatuses,
		ToStatus:     string(models.StatusCancelled),
		CancelledAt:  &now,
		CancelReason: sql.NullString{String: reason, Valid: true},
		UpdatedAt:    now,
	})
	if err != nil || !ok {
		return false, err
	}
	if _, err := q.UpdatePaymentStatus(ctx, store.UpdatePaymentStatusParams{
		BookingID:    bookingID,
		FromStatuses: openPayments,
		ToStatus:     string(models.PaymentExpired),
		UpdatedAt:    now,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// ConfirmPayment applies a completed payment. A pending booking becomes
// CONFIRMED and its deadline is cleared; an already confirmed booking is left
// alone. A payment for a booking that already released its slots is recorded
// as COMPLETED and flagged for a manual refund without reviving the booking.
func (s *Service) ConfirmPayment(ctx context.Context, bookingID int64, externalID string) (models.Booking, error) {
	now := s.clock()
	var (
		confirmed, orphaned bool
		before              models.BookingStatus
	)
	err := s.tx.WithinTx(ctx, func(q Querier) error {
		row, err := q.GetBooking(ctx, bookingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return newError(CodeNotFound, "booking not found")
			}
			return err
		}
		before = models.BookingStatus(row.Status)
		if err := checkPaymentReference(ctx, q, bookingID, externalID); err != nil {
			return err
		}
		ext := sql.NullString{String: externalID, Valid: externalID != ""}

		switch before {
		case models.StatusPendingPayment:
			confirmed, err = q.TransitionBooking(ctx, store.TransitionBookingParams{
				ID:           bookingID,
				FromStatuses: []string{string(models.StatusPendingPayment)},
				ToStatus:     string(models.StatusConfirmed),
				UpdatedAt:    now,
			})
			if err != nil || !confirmed {
				return err
			}
			_, err = q.UpdatePaymentStatus(ctx, store.UpdatePaymentStatusParams{
				BookingID:    bookingID,
				FromStatuses: openPayments,
				ToStatus:     string(models.PaymentCompleted),
				ExternalID:   ext,
				PaidAt:       &now,
				UpdatedAt:    now,
			})
			return err
		case models.StatusCancelled, models.StatusExpired:
			orphaned, err = q.UpdatePaymentStatus(ctx, store.UpdatePaymentStatusParams{
				BookingID:    bookingID,
				FromStatuses: append([]string{string(models.PaymentExpired)}, openPayments...),
				ToStatus:     string(models.PaymentCompleted),
				ExternalID:   ext,
				PaidAt:       &now,
				UpdatedAt:    now,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return models.Booking{}, Translate(err, "confirm payment")
	}

	b, err := loadBooking(ctx, s.queries, bookingID)
	if err != nil {
		return models.Booking{}, Translate(err, "load booking")
	}
	logger := log.Ctx(ctx).With().Int64("booking_id", bookingID).Str("external_id", externalID).Logger()

	switch {
	case confirmed:
		logger.Info().Msg("Booking confirmed by payment")
		s.audit.RecordOrLog(ctx, audit.Event{
			OrganizationID: b.OrganizationID,
			Action:         audit.ActionBookingConfirmed,
			EntityType:     audit.EntityBooking,
			EntityID:       bookingID,
			Before:         map[string]string{"status": string(before)},
			After:          b,
		})
		s.publish(ctx, events.BookingConfirmed, bookingEvent(b, ""))
	case orphaned:
		logger.Warn().Str("status", string(before)).Msg("Payment completed for released booking, refund required")
		s.audit.RecordOrLog(ctx, audit.Event{
			OrganizationID: b.OrganizationID,
			Action:         audit.ActionPaymentOrphaned,
			EntityType:     audit.EntityBooking,
			EntityID:       bookingID,
			After:          map[string]string{"booking_status": string(before), "external_id": externalID},
		})
	}
	return b, nil
}

// checkPaymentReference rejects a reported charge id that differs from the one
// the gateway issued for this booking.
func checkPaymentReference(ctx context.Context, q Querier, bookingID int64, externalID string) error {
	if externalID == "" {
		return nil
	}
	pay, err := q.GetPaymentByBooking(ctx, bookingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return err
	case pay.ExternalID.Valid && pay.ExternalID.String != "" && pay.ExternalID.String != externalID:
		log.Ctx(ctx).Warn().
			Int64("booking_id", bookingID).
			Str("external_id", externalID).
			Str("expected_external_id", pay.ExternalID.String).
			Msg("Payment reference does not match booking")
		return &Error{Code: CodeValidation, Message: "payment reference does not match this booking", Err: ErrPaymentReferenceMismatch}
	}
	return nil
}

// FailPayment records a failed payment. The booking keeps its slots until the
// payment deadline passes, so the customer may retry.
func (s *Service) FailPayment(ctx context.Context, bookingID int64) (models.Booking, error) {
	now := s.clock()
	if _, err := s.queries.UpdatePaymentStatus(ctx, store.UpdatePaymentStatusParams{
		BookingID:    bookingID,
		FromStatuses: []string{string(models.PaymentPending)},
		ToStatus:     string(models.PaymentFailed),
		UpdatedAt:    now,
	}); err != nil {
		return models.Booking{}, Translate(err, "fail payment")
	}
	b, err := loadBooking(ctx, s.queries, bookingID)
	if err != nil {
		return models.Booking{}, Translate(err, "load booking")
	}
	log.Ctx(ctx).Info().Int64("booking_id", bookingID).Msg("Payment failed")
	return b, nil
}

// SyncPayment polls the gateway for the booking's payment and applies the result.
func (s *Service) SyncPayment(ctx context.Context, bookingID int64) (models.Booking, error) {
	if s.payments == nil {
		return models.Booking{}, &Error{Code: CodeValidation, Message: "no payment gateway is configured", Err: payments.ErrNotConfigured}
	}
	row, err := s.queries.GetPaymentByBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Booking{}, newError(CodeNotFound, "payment not found")
		}
		return models.Booking{}, Translate(err, "load payment")
	}
	if !row.ExternalID.Valid || row.ExternalID.String == "" {
		return models.Booking{}, validationf("the booking has no gateway payment")
	}

	status, err := s.payments.GetPaymentStatus(ctx, row.ExternalID.String)
	if err != nil {
		return models.Booking{}, &Error{Code: CodePersistence, Message: "payment gateway unavailable", Err: err}
	}
	switch status {
	case payments.StatusPaid:
		return s.ConfirmPayment(ctx, bookingID, row.ExternalID.String)
	case payments.StatusFailed:
		return s.FailPayment(ctx, bookingID)
	}
	b, err := loadBooking(ctx, s.queries, bookingID)
	if err != nil {
		return models.Booking{}, Translate(err, "load booking")
	}
	return b, nil
}

// ConfirmPaymentResult adapts ConfirmPayment for the payment event consumer.
// Unknown bookings are logged and dropped.
func (s *Service) ConfirmPaymentResult(ctx context.Context, bookingID int64, externalID string) error {
	_, err := s.ConfirmPayment(ctx, bookingID, externalID)
	return dropNotFound(ctx, err, bookingID)
}

func (s *Service) FailPaymentResult(ctx context.Context, bookingID int64) error {
	_, err := s.FailPayment(ctx, bookingID)
	return dropNotFound(ctx, err, bookingID)
}

// dropNotFound swallows results that can never apply, so the consumer acks
// them instead of requeueing forever.
func dropNotFound(ctx context.Context, err error, bookingID int64) error {
	switch {
	case errors.Is(err, ErrNotFound):
		log.Ctx(ctx).Warn().Int64("booking_id", bookingID).Msg("Payment result for unknown booking")
		return nil
	case errors.Is(err, ErrPaymentReferenceMismatch):
		log.Ctx(ctx).Warn().Int64("booking_id", bookingID).Msg("Dropping payment result with a foreign charge id")
		return nil
	}
	return err
}

// Complete marks a confirmed booking as played.
func (s *Service) Complete(ctx context.Context, org models.Organization, p Principal, bookingID int64) (models.Booking, error) {
	return s.closeOut(ctx, org, p, bookingID, models.StatusCompleted, audit.ActionBookingCompleted, events.BookingCompleted)
}

// MarkNoShow marks a confirmed booking whose player did not arrive.
func (s *Service) MarkNoShow(ctx context.Context, org models.Organization, p Principal, bookingID int64) (models.Booking, error) {
	return s.closeOut(ctx, org, p, bookingID, models.StatusNoShow, audit.ActionBookingNoShow, events.BookingNoShow)
}

func (s *Service) closeOut(ctx context.Context, org models.Organization, p Principal, bookingID int64, to models.BookingStatus, action, routingKey string) (models.Booking, error) {
	if err := RequireAdmin(p); err != nil {
		return models.Booking{}, err
	}
	b, err := s.bookingInOrg(ctx, org, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if !models.CanTransition(b.Status, to) {
		return models.Booking{}, newError(CodeInvalidTransition, fmt.Sprintf("only confirmed bookings can be marked %s", strings.ToLower(string(to))))
	}
	now := s.clock()
	if end := b.EndsAt(); end.IsZero() || now.Before(end) {
		return models.Booking{}, newError(CodeInvalidTransition, "the booking has not finished yet")
	}

	ok, err := s.queries.TransitionBooking(ctx, store.TransitionBookingParams{
		ID:           bookingID,
		FromStatuses: []string{string(models.StatusConfirmed)},
		ToStatus:     string(to),
		UpdatedAt:    now,
	})
	if err != nil {
		return models.Booking{}, Translate(err, "update booking")
	}
	if !ok {
		return models.Booking{}, newError(CodeInvalidTransition, "the booking changed state, reload and try again")
	}
	after, err := loadBooking(ctx, s.queries, bookingID)
	if err != nil {
		return models.Booking{}, Translate(err, "load booking")
	}
	s.audit.RecordOrLog(ctx, audit.Event{
		OrganizationID: org.ID,
		ActorID:        p.actorID(),
		Action:         action,
		EntityType:     audit.EntityBooking,
		EntityID:       bookingID,
		Before:         map[string]string{"status": string(b.Status)},
		After:          map[string]string{"status": string(after.Status)},
	})
	s.publish(ctx, routingKey, bookingEvent(after, ""))
	return after, nil
}

// GetBooking loads a booking for its owner, guest token holder, or an
// administrator. An overdue pending booking is expired first.
func (s *Service) GetBooking(ctx context.Context, org models.Organization, p Principal, bookingID int64) (BookingView, error) {
	if _, err := s.ExpireIfDue(ctx, bookingID); err != nil {
		return BookingView{}, err
	}
	b, err := s.bookingInOrg(ctx, org, bookingID)
	if err != nil {
		return BookingView{}, err
	}
	if err := s.authorizeAccess(ctx, p, b); err != nil {
		return BookingView{}, err
	}

	view := BookingView{Booking: b, ExpiresInSeconds: secondsUntil(b.ExpiresAt, s.clock())}
	payment, err := s.queries.GetPaymentByBooking(ctx, bookingID)
	switch {
	case err == nil:
		pm := models.PaymentFromRow(payment)
		view.Payment = &pm
	case !errors.Is(err, sql.ErrNoRows):
		return BookingView{}, Translate(err, "load payment")
	}
	return view, nil
}

func (s *Service) bookingInOrg(ctx context.Context, org models.Organization, bookingID int64) (models.Booking, error) {
	b, err := loadBooking(ctx, s.queries, bookingID)
	if err != nil {
		return models.Booking{}, Translate(err, "load booking")
	}
	if b.OrganizationID != org.ID {
		return models.Booking{}, newError(CodeNotFound, "booking not found")
	}
	return b, nil
}

func (s *Service) authorizeAccess(ctx context.Context, p Principal, b models.Booking) error {
	switch {
	case p.isAdmin():
		return nil
	case p.User != nil:
		if b.OwnedBy(p.User.ID) {
			return nil
		}
		return newError(CodeForbidden, "you do not have access to this booking")
	case p.GuestToken != "":
		if b.GuestID == nil {
			return newError(CodeForbidden, "you do not have access to this booking")
		}
		guest, err := s.queries.GetGuest(ctx, *b.GuestID)
		if err != nil {
			return Translate(err, "load guest")
		}
		if !verifyGuestToken(guest.TokenHash, p.GuestToken) {
			return newError(CodeForbidden, "you do not have access to this booking")
		}
		return nil
	default:
		return newError(CodeNotAuthenticated, "sign in to manage this booking")
	}
}

func RequireAdmin(p Principal) error {
	if p.User == nil {
		return newError(CodeNotAuthenticated, "sign in as an administrator")
	}
	if !p.User.IsAdmin {
		return newError(CodeForbidden, "administrator access required")
	}
	return nil
}

// recipientFor resolves the email address notices for b go to.
func (s *Service) recipientFor(ctx context.Context, b models.Booking) string {
	switch {
	case b.UserID != nil:
		u, err := s.queries.GetUserByID(ctx, *b.UserID)
		if err == nil {
			return u.Email
		}
		log.Ctx(ctx).Warn().Err(err).Int64("booking_id", b.ID).Msg("Failed to load booking owner for notice")
	case b.GuestID != nil:
		g, err := s.queries.GetGuest(ctx, *b.GuestID)
		if err == nil {
			return g.Email
		}
		log.Ctx(ctx).Warn().Err(err).Int64("booking_id", b.ID).Msg("Failed to load booking guest for notice")
	}
	return ""
}
