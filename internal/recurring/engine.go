// Package recurring expands weekly court reservations into individual
// confirmed bookings.
package recurring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/audit"
	"github.com/codr1/Courtside/internal/booking"
	"github.com/codr1/Courtside/internal/db/store"
	"github.com/codr1/Courtside/internal/events"
	"github.com/codr1/Courtside/internal/models"
	"github.com/codr1/Courtside/internal/slots"
)

const frequencyWeekly = "weekly"

// Skip reasons reported per occurrence.
const (
	SkipPast     = "past"
	SkipBooked   = "booked"
	SkipBlocked  = "blocked"
	SkipConflict = "conflict"
)

type Request struct {
	CourtID   int64      `json:"courtId" validate:"required,gt=0"`
	Title     string     `json:"title" validate:"required,max=200"`
	DayOfWeek int        `json:"dayOfWeek" validate:"gte=0,lte=6"`
	StartTime string     `json:"startTime" validate:"required"`
	EndTime   string     `json:"endTime" validate:"required"`
	StartsOn  slots.Date `json:"startsOn"`
	EndsOn    slots.Date `json:"endsOn"`
	Notes     string     `json:"notes,omitempty" validate:"max=1000"`
}

type Skipped struct {
	Date   slots.Date `json:"date"`
	Reason string     `json:"reason"`
}

type Result struct {
	Recurring  models.RecurringBooking `json:"recurring"`
	Created    int                     `json:"created"`
	Skipped    int                     `json:"skipped"`
	BookingIDs []int64                 `json:"bookingIds"`
	SkipDates  []Skipped               `json:"skippedDates"`
}

type CancelResult struct {
	Recurring models.RecurringBooking `json:"recurring"`
	Cancelled int                     `json:"cancelled"`
}

type Engine struct {
	tx      booking.Transactor
	queries booking.Querier
	audit   *audit.Recorder
	events  events.Publisher
	now     func() time.Time
}

func NewEngine(tx booking.Transactor, queries booking.Querier, rec *audit.Recorder, pub events.Publisher, now func() time.Time) (*Engine, error) {
	if tx == nil || queries == nil {
		return nil, errors.New("recurring engine requires storage")
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{tx: tx, queries: queries, audit: rec, events: pub, now: now}, nil
}

// Occurrences lists every date in [startsOn, endsOn] falling on weekday.
func Occurrences(startsOn, endsOn slots.Date, weekday time.Weekday) []slots.Date {
	if endsOn.Before(startsOn) {
		return nil
	}
	offset := (int(weekday) - int(startsOn.Weekday()) + 7) % 7
	var dates []slots.Date
	for d := startsOn.AddDays(offset); !d.After(endsOn); d = d.AddDays(7) {
		dates = append(dates, d)
	}
	return dates
}

type pattern struct {
	start, end slots.TimeOfDay
}

func parsePattern(req Request) (pattern, error) {
	if err := booking.Validator().Struct(req); err != nil {
		return pattern{}, &booking.Error{Code: booking.CodeValidation, Message: "invalid recurring booking", Err: err}
	}
	if strings.TrimSpace(req.Title) == "" {
		return pattern{}, &booking.Error{Code: booking.CodeValidation, Message: "title is required"}
	}
	start, err := slots.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return pattern{}, &booking.Error{Code: booking.CodeValidation, Message: "invalid start time", Err: err}
	}
	end, err := slots.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return pattern{}, &booking.Error{Code: booking.CodeValidation, Message: "invalid end time", Err: err}
	}
	if end <= start {
		return pattern{}, &booking.Error{Code: booking.CodeValidation, Message: "end time must be after start time"}
	}
	if req.StartsOn.IsZero() || req.EndsOn.IsZero() {
		return pattern{}, &booking.Error{Code: booking.CodeValidation, Message: "start and end dates are required"}
	}
	if !req.EndsOn.After(req.StartsOn) {
		return pattern{}, &booking.Error{Code: booking.CodeValidation, Message: "end date must be after start date"}
	}
	return pattern{start: start, end: end}, nil
}

// Create stores the pattern and books every matching date as a confirmed,
// zero-price administrative booking. Dates already in the past, overlapping a
// live booking, or inside a court block are skipped and counted.
func (e *Engine) Create(ctx context.Context, org models.Organization, p booking.Principal, req Request) (Result, error) {
	if err := booking.RequireAdmin(p); err != nil {
		return Result{}, err
	}
	req.Title = strings.TrimSpace(req.Title)
	pat, err := parsePattern(req)
	if err != nil {
		return Result{}, err
	}

	logger := log.Ctx(ctx).With().
		Str("component", "recurring_engine").
		Int64("organization_id", org.ID).
		Int64("court_id", req.CourtID).
		Logger()
	ctx = logger.WithContext(ctx)

	loc := org.Location()
	now := e.now().UTC().Truncate(time.Second)
	adminID := p.User.ID
	dates := Occurrences(req.StartsOn, req.EndsOn, time.Weekday(req.DayOfWeek))
	notes := strings.TrimSpace(req.Notes)

	var (
		recurringID int64
		res         Result
	)
	err = e.tx.WithinTx(ctx, func(q booking.Querier) error {
		res = Result{}
		if _, err := q.GetCourt(ctx, org.ID, req.CourtID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &booking.Error{Code: booking.CodeValidation, Message: "court does not belong to this organization"}
			}
			return fmt.Errorf("load court: %w", err)
		}

		recurringID, err = q.CreateRecurringBooking(ctx, store.CreateRecurringBookingParams{
			OrganizationID: org.ID,
			CreatedBy:      adminID,
			CourtID:        req.CourtID,
			Title:          req.Title,
			DayOfWeek:      int64(req.DayOfWeek),
			StartTime:      pat.start.String(),
			EndTime:        pat.end.String(),
			StartsOn:       req.StartsOn.String(),
			EndsOn:         req.EndsOn.String(),
			Frequency:      frequencyWeekly,
			Notes:          sql.NullString{String: notes, Valid: notes != ""},
		})
		if err != nil {
			return fmt.Errorf("create recurring booking: %w", err)
		}

		for _, d := range dates {
			start := slots.At(d, pat.start, loc)
			end := slots.At(d, pat.end, loc)
			id, reason, err := e.occurrence(ctx, q, org, adminID, recurringID, req, start, end, now)
			if err != nil {
				return err
			}
			if reason != "" {
				res.Skipped++
				res.SkipDates = append(res.SkipDates, Skipped{Date: d, Reason: reason})
				continue
			}
			res.Created++
			res.BookingIDs = append(res.BookingIDs, id)
		}
		return nil
	})
	if err != nil {
		return Result{}, booking.Translate(err, "create recurring booking")
	}

	row, err := e.queries.GetRecurringBooking(ctx, org.ID, recurringID)
	if err != nil {
		return Result{}, booking.Translate(err, "load recurring booking")
	}
	res.Recurring = models.RecurringBookingFromRow(row)

	logger.Info().
		Int64("recurring_id", recurringID).
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Msg("Recurring booking created")
	e.audit.RecordOrLog(ctx, audit.Event{
		OrganizationID: org.ID,
		ActorID:        &adminID,
		Action:         audit.ActionRecurringCreated,
		EntityType:     audit.EntityRecurring,
		EntityID:       recurringID,
		After:          res,
	})
	if err := e.events.Publish(ctx, events.RecurringCreated, res); err != nil {
		logger.Warn().Err(err).Int64("recurring_id", recurringID).Msg("Failed to publish recurring event")
	}
	return res, nil
}

// occurrence books one date of the series. It returns the booking id, or the
// reason the date was skipped.
func (e *Engine) occurrence(ctx context.Context, q booking.Querier, org models.Organization, adminID, recurringID int64, req Request, start, end, now time.Time) (int64, string, error) {
	if !start.After(now) {
		return 0, SkipPast, nil
	}
	held, err := q.CountHoldingOverlaps(ctx, req.CourtID, start, end)
	if err != nil {
		return 0, "", fmt.Errorf("check booked overlap: %w", err)
	}
	if held > 0 {
		return 0, SkipBooked, nil
	}
	blocked, err := q.CountOverlappingBlocks(ctx, req.CourtID, start, end)
	if err != nil {
		return 0, "", fmt.Errorf("check block overlap: %w", err)
	}
	if blocked > 0 {
		return 0, SkipBlocked, nil
	}

	title := req.Title
	id, err := booking.InsertBooking(ctx, q, booking.NewBooking{
		OrganizationID:     org.ID,
		UserID:             &adminID,
		Type:               models.TypeCourtBooking,
		Currency:           org.Currency,
		Status:             models.StatusConfirmed,
		IsAdminOverride:    true,
		AdminNotes:         &title,
		RecurringBookingID: &recurringID,
		Slots:              []booking.PricedSlot{{CourtID: req.CourtID, Start: start, End: end}},
	})
	if errors.Is(err, store.ErrSlotConflict) {
		return 0, SkipConflict, nil
	}
	if err != nil {
		return 0, "", err
	}
	return id, "", nil
}

// Cancel deactivates the pattern and cancels its bookings that have not
// started yet. Past occurrences are left alone. Cancelling an inactive
// pattern cancels nothing.
func (e *Engine) Cancel(ctx context.Context, org models.Organization, p booking.Principal, recurringID int64) (CancelResult, error) {
	if err := booking.RequireAdmin(p); err != nil {
		return CancelResult{}, err
	}
	now := e.now().UTC().Truncate(time.Second)
	var (
		row       store.RecurringBooking
		cancelled []int64
	)
	err := e.tx.WithinTx(ctx, func(q booking.Querier) error {
		cancelled = nil
		var err error
		row, err = q.GetRecurringBooking(ctx, org.ID, recurringID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &booking.Error{Code: booking.CodeNotFound, Message: "recurring booking not found"}
			}
			return fmt.Errorf("load recurring booking: %w", err)
		}
		if _, err := q.DeactivateRecurringBooking(ctx, org.ID, recurringID); err != nil {
			return fmt.Errorf("deactivate recurring booking: %w", err)
		}
		ids, err := q.ListUpcomingRecurringBookings(ctx, recurringID, now)
		if err != nil {
			return fmt.Errorf("list upcoming bookings: %w", err)
		}
		for _, id := range ids {
			ok, err := booking.CancelWithin(ctx, q, id, booking.ReasonRecurringCancelled, now)
			if err != nil {
				return fmt.Errorf("cancel booking %d: %w", id, err)
			}
			if ok {
				cancelled = append(cancelled, id)
			}
		}
		return nil
	})
	if err != nil {
		return CancelResult{}, booking.Translate(err, "cancel recurring booking")
	}

	row.IsActive = false
	out := CancelResult{Recurring: models.RecurringBookingFromRow(row), Cancelled: len(cancelled)}
	log.Ctx(ctx).Info().
		Int64("recurring_id", recurringID).
		Int("cancelled", out.Cancelled).
		Msg("Recurring booking cancelled")
	e.audit.RecordOrLog(ctx, audit.Event{
		OrganizationID: org.ID,
		ActorID:        &p.User.ID,
		Action:         audit.ActionRecurringCancelled,
		EntityType:     audit.EntityRecurring,
		EntityID:       recurringID,
		After:          out,
	})
	for _, id := range cancelled {
		if err := e.events.Publish(ctx, events.BookingCancelled, events.BookingEvent{
			Event:          events.BookingCancelled,
			Version:        1,
			BookingID:      id,
			OrganizationID: org.ID,
			Status:         string(models.StatusCancelled),
			Currency:       org.Currency,
			Reason:         booking.ReasonRecurringCancelled,
			OccurredAt:     now,
		}); err != nil {
			log.Ctx(ctx).Warn().Err(err).Int64("booking_id", id).Msg("Failed to publish booking event")
		}
	}
	return out, nil
}

func (e *Engine) List(ctx context.Context, org models.Organization, p booking.Principal) ([]models.RecurringBooking, error) {
	if err := booking.RequireAdmin(p); err != nil {
		return nil, err
	}
	rows, err := e.queries.ListRecurringBookings(ctx, org.ID)
	if err != nil {
		return nil, booking.Translate(err, "list recurring bookings")
	}
	out := make([]models.RecurringBooking, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.RecurringBookingFromRow(row))
	}
	return out, nil
}
