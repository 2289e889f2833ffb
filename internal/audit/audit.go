// Package audit records state changes of booking entities.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/db/store"
)

// Actions written to audit_log.
const (
	ActionBookingCreated        = "booking.created"
	ActionBookingPriceCorrected = "booking.price_corrected"
	ActionBookingConfirmed      = "booking.confirmed"
	ActionBookingCancelled      = "booking.cancelled"
	ActionBookingExpired        = "booking.expired"
	ActionBookingCompleted      = "booking.completed"
	ActionBookingNoShow         = "booking.no_show"
	ActionPaymentOrphaned       = "payment.orphaned"
	ActionBlockCreated          = "court_block.created"
	ActionBlockDeleted          = "court_block.deleted"
	ActionRecurringCreated      = "recurring.created"
	ActionRecurringCancelled    = "recurring.cancelled"
)

const (
	EntityBooking   = "booking"
	EntityBlock     = "court_block"
	EntityRecurring = "recurring_booking"
)

type Event struct {
	OrganizationID int64
	ActorID        *int64
	Action         string
	EntityType     string
	EntityID       int64
	Before         any
	After          any
}

type Writer interface {
	CreateAuditEvent(ctx context.Context, arg store.CreateAuditEventParams) (int64, error)
}

type Recorder struct {
	w Writer
}

func NewRecorder(w Writer) *Recorder {
	return &Recorder{w: w}
}

// Record writes one event. A nil Recorder records nothing.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	if r == nil || r.w == nil {
		return nil
	}
	before, err := marshalState(e.Before)
	if err != nil {
		return fmt.Errorf("marshal audit before state: %w", err)
	}
	after, err := marshalState(e.After)
	if err != nil {
		return fmt.Errorf("marshal audit after state: %w", err)
	}
	if _, err := r.w.CreateAuditEvent(ctx, store.CreateAuditEventParams{
		OrganizationID: e.OrganizationID,
		ActorID:        store.NullInt64(e.ActorID),
		Action:         e.Action,
		EntityType:     e.EntityType,
		EntityID:       e.EntityID,
		BeforeState:    before,
		AfterState:     after,
	}); err != nil {
		return fmt.Errorf("create audit event %s: %w", e.Action, err)
	}
	return nil
}

// RecordOrLog records e and logs instead of returning a failure.
func (r *Recorder) RecordOrLog(ctx context.Context, e Event) {
	if err := r.Record(ctx, e); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Str("action", e.Action).
			Str("entity_type", e.EntityType).
			Int64("entity_id", e.EntityID).
			Msg("Failed to record audit event")
	}
}

func marshalState(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
