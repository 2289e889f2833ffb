// internal/models/booking.go
package models

import (
	"time"

	"github.com/codr1/Courtside/internal/db/store"
)

type BookingStatus string

const (
	StatusPendingPayment BookingStatus = "PENDING_PAYMENT"
	StatusConfirmed      BookingStatus = "CONFIRMED"
	StatusCancelled      BookingStatus = "CANCELLED"
	StatusExpired        BookingStatus = "EXPIRED"
	StatusCompleted      BookingStatus = "COMPLETED"
	StatusNoShow         BookingStatus = "NO_SHOW"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	StatusPendingPayment: {StatusConfirmed, StatusExpired, StatusCancelled},
	StatusConfirmed:      {StatusCancelled, StatusCompleted, StatusNoShow},
}

// CanTransition reports whether the lifecycle permits from -> to.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// HoldsInventory reports whether slots of a booking in this status still
// occupy court time.
func (s BookingStatus) HoldsInventory() bool {
	return s != StatusCancelled && s != StatusExpired
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

type BookingType string

const (
	TypeCourtBooking    BookingType = "COURT_BOOKING"
	TypeCorporate       BookingType = "CORPORATE_BOOKING"
	TypePrivateCoaching BookingType = "PRIVATE_COACHING"
)

func (t BookingType) Valid() bool {
	switch t {
	case TypeCourtBooking, TypeCorporate, TypePrivateCoaching:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentExpired   PaymentStatus = "EXPIRED"
)

type Booking struct {
	ID                 int64         `json:"id"`
	OrganizationID     int64         `json:"organizationId"`
	UserID             *int64        `json:"userId,omitempty"`
	GuestID            *int64        `json:"guestId,omitempty"`
	Type               BookingType   `json:"type"`
	TotalPriceCents    int64         `json:"totalPriceCents"`
	Currency           string        `json:"currency"`
	Status             BookingStatus `json:"status"`
	ExpiresAt          *time.Time    `json:"expiresAt,omitempty"`
	IsAdminOverride    bool          `json:"isAdminOverride"`
	AdminNotes         *string       `json:"adminNotes,omitempty"`
	CancelledAt        *time.Time    `json:"cancelledAt,omitempty"`
	CancelReason       *string       `json:"cancelReason,omitempty"`
	RecurringBookingID *int64        `json:"recurringBookingId,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
	Slots              []BookingSlot `json:"slots,omitempty"`
}

func BookingFromRow(row store.Booking) Booking {
	return Booking{
		ID:                 row.ID,
		OrganizationID:     row.OrganizationID,
		UserID:             int64Ptr(row.UserID),
		GuestID:            int64Ptr(row.GuestID),
		Type:               BookingType(row.Type),
		TotalPriceCents:    row.TotalPriceCents,
		Currency:           row.Currency,
		Status:             BookingStatus(row.Status),
		ExpiresAt:          timePtr(row.ExpiresAt),
		IsAdminOverride:    row.IsAdminOverride,
		AdminNotes:         stringPtr(row.AdminNotes),
		CancelledAt:        timePtr(row.CancelledAt),
		CancelReason:       stringPtr(row.CancelReason),
		RecurringBookingID: int64Ptr(row.RecurringBookingID),
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

// OwnedBy reports whether userID placed the booking.
func (b Booking) OwnedBy(userID int64) bool {
	return b.UserID != nil && *b.UserID == userID
}

// EndsAt is the latest slot end, zero when slots are not loaded.
func (b Booking) EndsAt() time.Time {
	var end time.Time
	for _, s := range b.Slots {
		if s.EndTime.After(end) {
			end = s.EndTime
		}
	}
	return end
}

type BookingSlot struct {
	ID         int64     `json:"id"`
	BookingID  int64     `json:"bookingId"`
	CourtID    int64     `json:"courtId"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	PriceCents int64     `json:"priceCents"`
}

func BookingSlotFromRow(row store.BookingSlot) BookingSlot {
	return BookingSlot{
		ID:         row.ID,
		BookingID:  row.BookingID,
		CourtID:    row.CourtID,
		StartTime:  row.StartTime,
		EndTime:    row.EndTime,
		PriceCents: row.PriceCents,
	}
}

func BookingSlotsFromRows(rows []store.BookingSlot) []BookingSlot {
	out := make([]BookingSlot, 0, len(rows))
	for _, row := range rows {
		out = append(out, BookingSlotFromRow(row))
	}
	return out
}

type Payment struct {
	ID          int64         `json:"id"`
	BookingID   int64         `json:"bookingId"`
	UserID      *int64        `json:"userId,omitempty"`
	AmountCents int64         `json:"amountCents"`
	Currency    string        `json:"currency"`
	Status      PaymentStatus `json:"status"`
	ExternalID  *string       `json:"externalId,omitempty"`
	RedirectURL *string       `json:"redirectUrl,omitempty"`
	PaidAt      *time.Time    `json:"paidAt,omitempty"`
}

func PaymentFromRow(row store.Payment) Payment {
	return Payment{
		ID:          row.ID,
		BookingID:   row.BookingID,
		UserID:      int64Ptr(row.UserID),
		AmountCents: row.AmountCents,
		Currency:    row.Currency,
		Status:      PaymentStatus(row.Status),
		ExternalID:  stringPtr(row.ExternalID),
		RedirectURL: stringPtr(row.RedirectURL),
		PaidAt:      timePtr(row.PaidAt),
	}
}

type RecurringBooking struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organizationId"`
	CreatedBy      int64     `json:"createdBy"`
	CourtID        int64     `json:"courtId"`
	Title          string    `json:"title"`
	DayOfWeek      int       `json:"dayOfWeek"`
	StartTime      string    `json:"startTime"`
	EndTime        string    `json:"endTime"`
	StartsOn       string    `json:"startsOn"`
	EndsOn         string    `json:"endsOn"`
	Frequency      string    `json:"frequency"`
	Notes          *string   `json:"notes,omitempty"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

func RecurringBookingFromRow(row store.RecurringBooking) RecurringBooking {
	return RecurringBooking{
		ID:             row.ID,
		OrganizationID: row.OrganizationID,
		CreatedBy:      row.CreatedBy,
		CourtID:        row.CourtID,
		Title:          row.Title,
		DayOfWeek:      int(row.DayOfWeek),
		StartTime:      row.StartTime,
		EndTime:        row.EndTime,
		StartsOn:       row.StartsOn,
		EndsOn:         row.EndsOn,
		Frequency:      row.Frequency,
		Notes:          stringPtr(row.Notes),
		IsActive:       row.IsActive,
		CreatedAt:      row.CreatedAt,
	}
}
