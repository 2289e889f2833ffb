// Package booking implements the reservation transaction and the booking
// lifecycle: creation, payment confirmation, cancellation, expiry, and the
// administrative transitions after play.
package booking

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/codr1/Courtside/internal/audit"
	"github.com/codr1/Courtside/internal/config"
	"github.com/codr1/Courtside/internal/db"
	"github.com/codr1/Courtside/internal/db/store"
	"github.com/codr1/Courtside/internal/email"
	"github.com/codr1/Courtside/internal/events"
	"github.com/codr1/Courtside/internal/payments"
	"github.com/codr1/Courtside/internal/ratelimit"
)

// Querier is the storage surface the booking core reads and writes.
type Querier interface {
	GetOrganizationByID(ctx context.Context, id int64) (store.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (store.Organization, error)
	ListAppSettings(ctx context.Context, organizationID int64) ([]store.AppSetting, error)
	GetUserByID(ctx context.Context, id int64) (store.User, error)

	GetCourt(ctx context.Context, organizationID, courtID int64) (store.Court, error)
	CountOverlappingBlocks(ctx context.Context, courtID int64, start, end time.Time) (int64, error)
	CreateCourtBlock(ctx context.Context, arg store.CreateCourtBlockParams) (store.CourtBlock, error)
	DeleteCourtBlock(ctx context.Context, organizationID, blockID int64) (bool, error)

	CreateBooking(ctx context.Context, arg store.CreateBookingParams) (int64, error)
	GetBooking(ctx context.Context, id int64) (store.Booking, error)
	DeleteBooking(ctx context.Context, id int64) error
	CreateBookingSlot(ctx context.Context, arg store.CreateBookingSlotParams) (int64, error)
	ListBookingSlots(ctx context.Context, bookingID int64) ([]store.BookingSlot, error)
	CountActiveOverlaps(ctx context.Context, courtID int64, start, end time.Time) (int64, error)
	CountHoldingOverlaps(ctx context.Context, courtID int64, start, end time.Time) (int64, error)
	TransitionBooking(ctx context.Context, arg store.TransitionBookingParams) (bool, error)
	ListDuePendingBookings(ctx context.Context, now time.Time, limit int) ([]int64, error)

	CreatePayment(ctx context.Context, arg store.CreatePaymentParams) (int64, error)
	GetPaymentByBooking(ctx context.Context, bookingID int64) (store.Payment, error)
	SetPaymentGatewayRefs(ctx context.Context, bookingID int64, externalID, redirectURL string, now time.Time) error
	UpdatePaymentStatus(ctx context.Context, arg store.UpdatePaymentStatusParams) (bool, error)

	CreateGuest(ctx context.Context, arg store.CreateGuestParams) (int64, error)
	GetGuest(ctx context.Context, id int64) (store.Guest, error)

	CreateRecurringBooking(ctx context.Context, arg store.CreateRecurringBookingParams) (int64, error)
	GetRecurringBooking(ctx context.Context, organizationID, id int64) (store.RecurringBooking, error)
	ListRecurringBookings(ctx context.Context, organizationID int64) ([]store.RecurringBooking, error)
	DeactivateRecurringBooking(ctx context.Context, organizationID, id int64) (bool, error)
	ListUpcomingRecurringBookings(ctx context.Context, recurringID int64, now time.Time) ([]int64, error)
}

// Transactor runs fn against a Querier bound to one write transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(q Querier) error) error
}

// DBTransactor runs on db.RunInTx. With the immediate transaction lock every
// call is serialized against all other writers.
type DBTransactor struct {
	DB *db.DB
}

func (t DBTransactor) WithinTx(ctx context.Context, fn func(q Querier) error) error {
	return t.DB.RunInTx(ctx, func(tx *db.DB) error {
		return fn(tx.Queries)
	})
}

// Notifier sends booking notices. Delivery is fire-and-forget.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, recipient string, d email.BookingDetails)
	SendBookingCancellation(ctx context.Context, recipient string, d email.BookingDetails)
}

type Deps struct {
	Tx       Transactor
	Queries  Querier
	Limiter  ratelimit.Limiter
	Payments payments.Gateway
	Notifier Notifier
	Events   events.Publisher
	Audit    *audit.Recorder
	Defaults config.BookingConfig
	// PhoneRegion parses guest phone numbers written without a country code.
	PhoneRegion string
	Now         func() time.Time
}

type Service struct {
	tx          Transactor
	queries     Querier
	limiter     ratelimit.Limiter
	payments    payments.Gateway
	notifier    Notifier
	events      events.Publisher
	audit       *audit.Recorder
	defaults    config.BookingConfig
	phoneRegion string
	now         func() time.Time
	tokenCost   int
}

func NewService(d Deps) *Service {
	s := &Service{
		tx:          d.Tx,
		queries:     d.Queries,
		limiter:     d.Limiter,
		payments:    d.Payments,
		notifier:    d.Notifier,
		events:      d.Events,
		audit:       d.Audit,
		defaults:    d.Defaults,
		phoneRegion: d.PhoneRegion,
		now:         d.Now,
		tokenCost:   bcrypt.DefaultCost,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	if s.defaults.WindowDays == 0 {
		s.defaults = config.DefaultBooking()
	}
	return s
}

// NewFromDB wires the service onto a database with no gateway, limiter,
// notifier, or publisher.
func NewFromDB(database *db.DB, defaults config.BookingConfig, now func() time.Time) *Service {
	return NewService(Deps{
		Tx:       DBTransactor{DB: database},
		Queries:  database.Queries,
		Audit:    audit.NewRecorder(database.Queries),
		Defaults: defaults,
		Now:      now,
	})
}

// clock returns now at the precision instants are stored with.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *Service) publish(ctx context.Context, key string, evt events.BookingEvent) {
	evt.Event = key
	evt.Version = 1
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.clock()
	}
	if err := s.events.Publish(ctx, key, evt); err != nil {
		log.Ctx(ctx).Warn().
			Err(err).
			Str("routing_key", key).
			Int64("booking_id", evt.BookingID).
			Msg("Failed to publish booking event")
	}
}

func (s *Service) checkRateLimit(ctx context.Context, p Principal) error {
	if s.limiter == nil {
		return nil
	}
	key := p.RateLimitKey()
	res, err := s.limiter.Allow(ctx, "reservation:"+key)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Rate limiter unavailable, allowing reservation attempt")
		return nil
	}
	if !res.Allowed {
		ratelimit.LogRateLimitExceeded(ctx, "reservation", key, res.RetryAfter)
		return &Error{
			Code:       CodeRateLimited,
			Message:    "too many booking attempts, try again shortly",
			RetryAfter: res.RetryAfter,
		}
	}
	return nil
}
