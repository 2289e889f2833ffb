package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/audit"
	"github.com/codr1/Courtside/internal/db/store"
	"github.com/codr1/Courtside/internal/email"
	"github.com/codr1/Courtside/internal/events"
	"github.com/codr1/Courtside/internal/models"
	"github.com/codr1/Courtside/internal/payments"
	"github.com/codr1/Courtside/internal/slots"
)

// SlotRequest is one requested interval. PriceCents is what the client was
// shown; the server price always wins.
type SlotRequest struct {
	CourtID    int64     `json:"courtId" validate:"required,gt=0"`
	Start      time.Time `json:"startTime" validate:"required"`
	End        time.Time `json:"endTime" validate:"required,gtfield=Start"`
	PriceCents *int64    `json:"priceCents,omitempty" validate:"omitempty,gte=0"`
}

// PricedSlot is a slot as it will be stored.
type PricedSlot struct {
	CourtID    int64     `json:"courtId"`
	Start      time.Time `json:"startTime"`
	End        time.Time `json:"endTime"`
	PriceCents int64     `json:"priceCents"`
	Peak       bool      `json:"peak"`
}

type Reservation struct {
	Booking            models.Booking  `json:"booking"`
	Payment            *models.Payment `json:"payment,omitempty"`
	PaymentRedirectURL *string         `json:"paymentRedirectUrl"`
	GuestToken         string          `json:"guestToken,omitempty"`
	PriceCorrected     bool            `json:"priceCorrected"`
	ExpiresInSeconds   int64           `json:"expiresInSeconds"`
}

type priceCorrection struct {
	CourtID     int64     `json:"courtId"`
	Start       time.Time `json:"startTime"`
	ClientCents int64     `json:"clientPriceCents"`
	ServerCents int64     `json:"serverPriceCents"`
}

// CreateReservation books one or more explicit slots as a single booking.
func (s *Service) CreateReservation(ctx context.Context, org models.Organization, p Principal, typ models.BookingType, reqs []SlotRequest) (Reservation, error) {
	if len(reqs) == 0 {
		return Reservation{}, validationf("at least one slot is required")
	}
	for i := range reqs {
		if err := validate.Struct(reqs[i]); err != nil {
			return Reservation{}, &Error{Code: CodeValidation, Message: fmt.Sprintf("slot %d is invalid", i+1), Err: err}
		}
	}
	return s.reserve(ctx, org, p, typ, func(ctx context.Context, q Querier, courts *courtCache, now time.Time) ([]SlotRequest, error) {
		return reqs, nil
	})
}

// CreateConsecutiveReservation books count consecutive slots of one court
// beginning with the generated slot that starts at start.
func (s *Service) CreateConsecutiveReservation(ctx context.Context, org models.Organization, p Principal, typ models.BookingType, courtID int64, start time.Time, count int) (Reservation, error) {
	if courtID <= 0 {
		return Reservation{}, validationf("court is required")
	}
	if count < 1 || count > org.Settings.MaxConsecutiveSlots {
		return Reservation{}, validationf("slot count must be between 1 and %d", org.Settings.MaxConsecutiveSlots)
	}
	return s.reserve(ctx, org, p, typ, func(ctx context.Context, q Querier, courts *courtCache, now time.Time) ([]SlotRequest, error) {
		court, err := courts.get(ctx, q, courtID)
		if err != nil {
			return nil, err
		}
		loc := org.Location()
		generated := court.Slots(slots.DateOf(start, loc), loc)
		first := -1
		for i, g := range generated {
			if g.Start.Equal(start) {
				first = i
				break
			}
		}
		if first < 0 {
			return nil, validationf("start time does not match the court's slot schedule")
		}
		if first+count > len(generated) {
			return nil, validationf("only %d slots remain before the court closes", len(generated)-first)
		}
		reqs := make([]SlotRequest, 0, count)
		for _, g := range generated[first : first+count] {
			reqs = append(reqs, SlotRequest{CourtID: courtID, Start: g.Start, End: g.End})
		}
		return reqs, nil
	})
}

type expandFunc func(ctx context.Context, q Querier, courts *courtCache, now time.Time) ([]SlotRequest, error)

func (s *Service) reserve(ctx context.Context, org models.Organization, p Principal, typ models.BookingType, expand expandFunc) (Reservation, error) {
	logger := log.Ctx(ctx).With().
		Str("component", "reservation").
		Int64("organization_id", org.ID).
		Logger()
	ctx = logger.WithContext(ctx)

	if typ == "" {
		typ = models.TypeCourtBooking
	}
	if !typ.Valid() {
		return Reservation{}, validationf("unknown booking type %q", typ)
	}

	guest, err := s.authorizeBooker(org, p)
	if err != nil {
		return Reservation{}, err
	}
	if err := s.checkRateLimit(ctx, p); err != nil {
		return Reservation{}, err
	}

	var guestToken, guestHash string
	if guest != nil {
		guestToken, guestHash, err = newGuestToken(s.tokenCost)
		if err != nil {
			return Reservation{}, Translate(err, "create guest token")
		}
	}

	now := s.clock()
	expiresAt := now.Add(org.Settings.PaymentTimeout())
	var (
		bookingID   int64
		priced      []PricedSlot
		corrections []priceCorrection
	)

	err = s.tx.WithinTx(ctx, func(q Querier) error {
		courts := &courtCache{orgID: org.ID}
		reqs, err := expand(ctx, q, courts, now)
		if err != nil {
			return err
		}
		priced, corrections, err = s.priceAndCheck(ctx, q, courts, org, reqs, now)
		if err != nil {
			return err
		}

		nb := NewBooking{
			OrganizationID: org.ID,
			Type:           typ,
			Currency:       org.Currency,
			Status:         models.StatusPendingPayment,
			ExpiresAt:      &expiresAt,
			Slots:          priced,
			PaymentStatus:  models.PaymentPending,
		}
		if p.User != nil {
			nb.UserID = p.actorID()
		} else {
			guestID, err := q.CreateGuest(ctx, store.CreateGuestParams{
				OrganizationID: org.ID,
				Name:           guest.Name,
				Email:          guest.Email,
				Phone:          sql.NullString{String: guest.Phone, Valid: guest.Phone != ""},
				TokenHash:      guestHash,
			})
			if err != nil {
				return fmt.Errorf("create guest: %w", err)
			}
			nb.GuestID = &guestID
		}

		bookingID, err = InsertBooking(ctx, q, nb)
		return err
	})
	if err != nil {
		err = Translate(err, "create reservation")
		logReservationFailure(ctx, err)
		return Reservation{}, err
	}

	logger.Info().
		Int64("booking_id", bookingID).
		Int("slot_count", len(priced)).
		Msg("Reservation created")

	res := Reservation{GuestToken: guestToken, PriceCorrected: len(corrections) > 0}
	b, err := loadBooking(ctx, s.queries, bookingID)
	if err != nil {
		return Reservation{}, Translate(err, "load reservation")
	}
	res.Booking = b
	res.ExpiresInSeconds = secondsUntil(b.ExpiresAt, now)

	s.audit.RecordOrLog(ctx, audit.Event{
		OrganizationID: org.ID,
		ActorID:        p.actorID(),
		Action:         audit.ActionBookingCreated,
		EntityType:     audit.EntityBooking,
		EntityID:       bookingID,
		After:          b,
	})
	if len(corrections) > 0 {
		logger.Warn().Int64("booking_id", bookingID).Int("corrections", len(corrections)).Msg("Client slot prices corrected")
		s.audit.RecordOrLog(ctx, audit.Event{
			OrganizationID: org.ID,
			ActorID:        p.actorID(),
			Action:         audit.ActionBookingPriceCorrected,
			EntityType:     audit.EntityBooking,
			EntityID:       bookingID,
			Before:         corrections,
			After:          priced,
		})
	}

	res.PaymentRedirectURL = s.startPayment(ctx, b)
	if payment, err := s.queries.GetPaymentByBooking(ctx, bookingID); err == nil {
		pm := models.PaymentFromRow(payment)
		res.Payment = &pm
	}

	s.notifyBooked(ctx, org, p, guest, b)
	s.publish(ctx, events.BookingCreated, bookingEvent(b, ""))
	return res, nil
}

// authorizeBooker returns the normalized guest details for guest principals.
func (s *Service) authorizeBooker(org models.Organization, p Principal) (*GuestInfo, error) {
	switch {
	case p.User != nil:
		if !p.User.EmailVerified {
			return nil, newError(CodeEmailUnverified, "verify your email address before booking")
		}
		return nil, nil
	case p.Guest != nil:
		if !org.AllowGuestBookings {
			return nil, newError(CodeForbidden, "guest bookings are not allowed, sign in to book")
		}
		g, err := NormalizeGuest(*p.Guest, s.phoneRegion)
		if err != nil {
			return nil, err
		}
		return &g, nil
	default:
		return nil, newError(CodeNotAuthenticated, "sign in to book a court")
	}
}

type courtCache struct {
	orgID  int64
	courts map[int64]models.Court
}

// get loads an active court of the organization, or CourtUnavailable.
func (c *courtCache) get(ctx context.Context, q Querier, courtID int64) (models.Court, error) {
	if court, ok := c.courts[courtID]; ok {
		return court, nil
	}
	row, err := q.GetCourt(ctx, c.orgID, courtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Court{}, newError(CodeCourtUnavailable, fmt.Sprintf("court %d is not available", courtID))
		}
		return models.Court{}, fmt.Errorf("load court %d: %w", courtID, err)
	}
	if !row.IsActive {
		return models.Court{}, newError(CodeCourtUnavailable, fmt.Sprintf("court %d is not available", courtID))
	}
	court, err := models.CourtFromRow(row)
	if err != nil {
		return models.Court{}, err
	}
	if c.courts == nil {
		c.courts = make(map[int64]models.Court)
	}
	c.courts[courtID] = court
	return court, nil
}

// priceAndCheck validates every requested slot against the court schedule and
// the booking window, recomputes its price, and re-checks inventory inside the
// caller's transaction. Checks run in request order.
func (s *Service) priceAndCheck(ctx context.Context, q Querier, courts *courtCache, org models.Organization, reqs []SlotRequest, now time.Time) ([]PricedSlot, []priceCorrection, error) {
	loc := org.Location()
	settings := org.Settings
	perCourt := make(map[int64]int)
	priced := make([]PricedSlot, 0, len(reqs))
	var corrections []priceCorrection

	for i, r := range reqs {
		court, err := courts.get(ctx, q, r.CourtID)
		if err != nil {
			return nil, nil, err
		}
		perCourt[r.CourtID]++
		if perCourt[r.CourtID] > settings.MaxConsecutiveSlots {
			return nil, nil, validationf("at most %d slots per court may be booked at once", settings.MaxConsecutiveSlots)
		}

		day := slots.DateOf(r.Start, loc)
		if !r.Start.After(now) {
			return nil, nil, validationf("slot %d starts in the past", i+1)
		}
		if !slots.IsBookable(day, now, loc, settings.WindowDays) {
			return nil, nil, validationf("%s is outside the %d-day booking window", day, settings.WindowDays)
		}

		// Inventory is re-checked before schedule alignment so a request
		// overlapping a live booking reports the conflict.
		booked, err := q.CountActiveOverlaps(ctx, r.CourtID, r.Start, r.End)
		if err != nil {
			return nil, nil, fmt.Errorf("check booked overlap: %w", err)
		}
		blocked, err := q.CountOverlappingBlocks(ctx, r.CourtID, r.Start, r.End)
		if err != nil {
			return nil, nil, fmt.Errorf("check block overlap: %w", err)
		}
		if booked > 0 || blocked > 0 {
			return nil, nil, conflict("one or more selected slots are no longer available, choose another")
		}

		generated := court.Slots(day, loc)
		idx := slots.FindAligned(generated, r.Start, r.End)
		if idx < 0 {
			return nil, nil, validationf("slot %d does not match the court's slot schedule", i+1)
		}
		quote := slots.PriceSlot(generated[idx], loc, settings.Peak, court.Rates())
		if r.PriceCents != nil && *r.PriceCents != quote.PriceCents {
			corrections = append(corrections, priceCorrection{
				CourtID:     r.CourtID,
				Start:       quote.Start,
				ClientCents: *r.PriceCents,
				ServerCents: quote.PriceCents,
			})
		}
		priced = append(priced, PricedSlot{
			CourtID:    r.CourtID,
			Start:      quote.Start,
			End:        quote.End,
			PriceCents: quote.PriceCents,
			Peak:       quote.Peak,
		})
	}

	if err := checkNoSelfOverlap(priced); err != nil {
		return nil, nil, err
	}
	return priced, corrections, nil
}

func checkNoSelfOverlap(in []PricedSlot) error {
	sorted := make([]PricedSlot, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CourtID != sorted[j].CourtID {
			return sorted[i].CourtID < sorted[j].CourtID
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})
	for i := 1; i < len(sorted); i++ {
		a, b := sorted[i-1], sorted[i]
		if a.CourtID == b.CourtID && slots.Overlaps(a.Start, a.End, b.Start, b.End) {
			return validationf("the request contains overlapping slots on court %d", a.CourtID)
		}
	}
	return nil
}

// NewBooking is a booking with its slots, ready to insert.
type NewBooking struct {
	OrganizationID     int64
	UserID             *int64
	GuestID            *int64
	Type               models.BookingType
	Currency           string
	Status             models.BookingStatus
	ExpiresAt          *time.Time
	IsAdminOverride    bool
	AdminNotes         *string
	RecurringBookingID *int64
	Slots              []PricedSlot
	// PaymentStatus creates the payment stub when set.
	PaymentStatus models.PaymentStatus
}

func (nb NewBooking) Total() int64 {
	var total int64
	for _, s := range nb.Slots {
		total += s.PriceCents
	}
	return total
}

// InsertBooking writes the booking row, its slots, and the payment stub. When
// a later insert fails the booking row is deleted before returning, so callers
// on storage without multi-statement transactions are left with no orphan. A
// failed cleanup is logged and the original error is returned.
func InsertBooking(ctx context.Context, q Querier, nb NewBooking) (int64, error) {
	if len(nb.Slots) == 0 {
		return 0, validationf("a booking needs at least one slot")
	}
	total := nb.Total()

	bookingID, err := q.CreateBooking(ctx, store.CreateBookingParams{
		OrganizationID:     nb.OrganizationID,
		UserID:             store.NullInt64(nb.UserID),
		GuestID:            store.NullInt64(nb.GuestID),
		Type:               string(nb.Type),
		TotalPriceCents:    total,
		Currency:           nb.Currency,
		Status:             string(nb.Status),
		ExpiresAt:          nb.ExpiresAt,
		IsAdminOverride:    nb.IsAdminOverride,
		AdminNotes:         store.NullString(nb.AdminNotes),
		RecurringBookingID: store.NullInt64(nb.RecurringBookingID),
	})
	if err != nil {
		return 0, fmt.Errorf("create booking: %w", err)
	}

	for _, ps := range nb.Slots {
		if _, err := q.CreateBookingSlot(ctx, store.CreateBookingSlotParams{
			BookingID:  bookingID,
			CourtID:    ps.CourtID,
			StartTime:  ps.Start,
			EndTime:    ps.End,
			PriceCents: ps.PriceCents,
		}); err != nil {
			compensate(ctx, q, bookingID, err)
			return 0, fmt.Errorf("create booking slot: %w", err)
		}
	}

	if nb.PaymentStatus != "" {
		if _, err := q.CreatePayment(ctx, store.CreatePaymentParams{
			BookingID:   bookingID,
			UserID:      store.NullInt64(nb.UserID),
			AmountCents: total,
			Currency:    nb.Currency,
			Status:      string(nb.PaymentStatus),
		}); err != nil {
			compensate(ctx, q, bookingID, err)
			return 0, fmt.Errorf("create payment: %w", err)
		}
	}
	return bookingID, nil
}

func compensate(ctx context.Context, q Querier, bookingID int64, cause error) {
	if err := q.DeleteBooking(ctx, bookingID); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			AnErr("cause", cause).
			Int64("booking_id", bookingID).
			Msg("Failed to delete booking after partial insert")
	}
}

// startPayment opens a gateway session after commit. A gateway failure leaves
// the booking pending until it expires.
func (s *Service) startPayment(ctx context.Context, b models.Booking) *string {
	if s.payments == nil || b.TotalPriceCents <= 0 {
		return nil
	}
	session, err := s.payments.CreatePayment(ctx, payments.Request{
		BookingID:   b.ID,
		AmountCents: b.TotalPriceCents,
		Currency:    b.Currency,
		Description: "Court booking #" + strconv.FormatInt(b.ID, 10),
	})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("booking_id", b.ID).Msg("Failed to create gateway payment")
		return nil
	}
	if err := s.queries.SetPaymentGatewayRefs(ctx, b.ID, session.ExternalID, session.RedirectURL, s.clock()); err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("booking_id", b.ID).Str("external_id", session.ExternalID).Msg("Failed to store gateway payment reference")
	}
	if session.RedirectURL == "" {
		return nil
	}
	return &session.RedirectURL
}

func (s *Service) notifyBooked(ctx context.Context, org models.Organization, p Principal, guest *GuestInfo, b models.Booking) {
	if s.notifier == nil {
		return
	}
	recipient := ""
	switch {
	case p.User != nil:
		recipient = p.User.Email
	case guest != nil:
		recipient = guest.Email
	}
	s.notifier.SendBookingConfirmation(ctx, recipient, bookingDetails(org, b, ""))
}

func bookingDetails(org models.Organization, b models.Booking, reason string) email.BookingDetails {
	d := email.BookingDetails{
		OrganizationName: org.Name,
		BookingID:        b.ID,
		Location:         org.Location(),
		TotalCents:       b.TotalPriceCents,
		Currency:         b.Currency,
		PaymentDeadline:  b.ExpiresAt,
		Reason:           reason,
	}
	seen := make(map[int64]bool)
	courts := ""
	for _, sl := range b.Slots {
		if d.Start.IsZero() || sl.StartTime.Before(d.Start) {
			d.Start = sl.StartTime
		}
		if sl.EndTime.After(d.End) {
			d.End = sl.EndTime
		}
		if !seen[sl.CourtID] {
			seen[sl.CourtID] = true
			if courts != "" {
				courts += ", "
			}
			courts += "Court " + strconv.FormatInt(sl.CourtID, 10)
		}
	}
	d.Courts = courts
	return d
}

func bookingEvent(b models.Booking, reason string) events.BookingEvent {
	return events.BookingEvent{
		BookingID:      b.ID,
		OrganizationID: b.OrganizationID,
		Status:         string(b.Status),
		TotalCents:     b.TotalPriceCents,
		Currency:       b.Currency,
		Reason:         reason,
	}
}

func loadBooking(ctx context.Context, q Querier, id int64) (models.Booking, error) {
	row, err := q.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Booking{}, newError(CodeNotFound, "booking not found")
		}
		return models.Booking{}, fmt.Errorf("load booking %d: %w", id, err)
	}
	slotRows, err := q.ListBookingSlots(ctx, id)
	if err != nil {
		return models.Booking{}, fmt.Errorf("load booking %d slots: %w", id, err)
	}
	b := models.BookingFromRow(row)
	b.Slots = models.BookingSlotsFromRows(slotRows)
	return b, nil
}

func secondsUntil(deadline *time.Time, now time.Time) int64 {
	if deadline == nil || !deadline.After(now) {
		return 0
	}
	return int64(deadline.Sub(now) / time.Second)
}

func logReservationFailure(ctx context.Context, err error) {
	logger := log.Ctx(ctx)
	switch CodeOf(err) {
	case CodePersistence:
		logger.Error().Err(err).Msg("Reservation failed")
	case CodeSlotConflict:
		logger.Info().Err(err).Msg("Reservation rejected by slot conflict")
	default:
		logger.Debug().Err(err).Msg("Reservation rejected")
	}
}
