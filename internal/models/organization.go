// internal/models/organization.go
package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/config"
	"github.com/codr1/Courtside/internal/db/store"
	"github.com/codr1/Courtside/internal/slots"
)

var ErrOrganizationNotFound = errors.New("organization not found")

// Setting keys read from app_settings. Organization rows override the
// global (organization_id 0) rows, which override config defaults.
const (
	SettingBookingWindowDays     = "booking_window_days"
	SettingSlotDurationMinutes   = "slot_duration_minutes"
	SettingMaxConsecutiveSlots   = "max_consecutive_slots"
	SettingPaymentTimeoutMinutes = "payment_timeout_minutes"
	SettingPeakStartHour         = "peak_start_hour"
	SettingPeakEndHour           = "peak_end_hour"
)

type BookingSettings struct {
	WindowDays            int              `json:"bookingWindowDays"`
	SlotDurationMinutes   int              `json:"slotDurationMinutes"`
	MaxConsecutiveSlots   int              `json:"maxConsecutiveSlots"`
	PaymentTimeoutMinutes int              `json:"paymentTimeoutMinutes"`
	Peak                  slots.PeakWindow `json:"-"`
}

func (s BookingSettings) PaymentTimeout() time.Duration {
	return time.Duration(s.PaymentTimeoutMinutes) * time.Minute
}

type Organization struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Slug               string          `json:"slug"`
	Timezone           string          `json:"timezone"`
	Currency           string          `json:"currency"`
	AllowGuestBookings bool            `json:"allowGuestBookings"`
	Settings           BookingSettings `json:"settings"`

	loc *time.Location
}

// Location is the organization's zone, UTC when the stored name is unknown.
func (o Organization) Location() *time.Location {
	if o.loc != nil {
		return o.loc
	}
	return slots.LoadLocation(o.Timezone)
}

type OrganizationQueries interface {
	GetOrganizationBySlug(ctx context.Context, slug string) (store.Organization, error)
	GetOrganizationByID(ctx context.Context, id int64) (store.Organization, error)
	ListAppSettings(ctx context.Context, organizationID int64) ([]store.AppSetting, error)
}

// LoadOrganizationBySlug resolves a tenant and its effective booking settings.
func LoadOrganizationBySlug(ctx context.Context, q OrganizationQueries, slug string, defaults config.BookingConfig) (Organization, error) {
	row, err := q.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		if isNoRows(err) {
			return Organization{}, ErrOrganizationNotFound
		}
		return Organization{}, fmt.Errorf("load organization %q: %w", slug, err)
	}
	return resolveOrganization(ctx, q, row, defaults)
}

func LoadOrganizationByID(ctx context.Context, q OrganizationQueries, id int64, defaults config.BookingConfig) (Organization, error) {
	row, err := q.GetOrganizationByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return Organization{}, ErrOrganizationNotFound
		}
		return Organization{}, fmt.Errorf("load organization %d: %w", id, err)
	}
	return resolveOrganization(ctx, q, row, defaults)
}

func resolveOrganization(ctx context.Context, q OrganizationQueries, row store.Organization, defaults config.BookingConfig) (Organization, error) {
	settings, err := q.ListAppSettings(ctx, row.ID)
	if err != nil {
		return Organization{}, fmt.Errorf("load settings for organization %d: %w", row.ID, err)
	}

	org := Organization{
		ID:                 row.ID,
		Name:               row.Name,
		Slug:               row.Slug,
		Timezone:           row.Timezone,
		Currency:           row.Currency,
		AllowGuestBookings: row.AllowGuestBookings,
		Settings:           ResolveBookingSettings(ctx, settings, defaults),
		loc:                slots.LoadLocation(row.Timezone),
	}
	return org, nil
}

// ResolveBookingSettings applies settings rows in order, so later rows win.
// Rows with unparseable or out-of-range values are ignored.
func ResolveBookingSettings(ctx context.Context, rows []store.AppSetting, defaults config.BookingConfig) BookingSettings {
	s := BookingSettings{
		WindowDays:            defaults.WindowDays,
		SlotDurationMinutes:   defaults.SlotDurationMinutes,
		MaxConsecutiveSlots:   defaults.MaxConsecutiveSlots,
		PaymentTimeoutMinutes: defaults.PaymentTimeoutMinutes,
		Peak:                  slots.PeakWindow{StartHour: defaults.PeakStartHour, EndHour: defaults.PeakEndHour},
	}

	for _, row := range rows {
		value, err := strconv.Atoi(row.Value)
		if err != nil {
			log.Ctx(ctx).Warn().
				Str("key", row.Key).
				Str("value", row.Value).
				Int64("organization_id", row.OrganizationID).
				Msg("Ignoring non-integer booking setting")
			continue
		}
		switch row.Key {
		case SettingBookingWindowDays:
			if value > 0 {
				s.WindowDays = value
			}
		case SettingSlotDurationMinutes:
			if value > 0 {
				s.SlotDurationMinutes = value
			}
		case SettingMaxConsecutiveSlots:
			if value > 0 {
				s.MaxConsecutiveSlots = value
			}
		case SettingPaymentTimeoutMinutes:
			if value > 0 {
				s.PaymentTimeoutMinutes = value
			}
		case SettingPeakStartHour:
			if value >= 0 && value <= 23 {
				s.Peak.StartHour = value
			}
		case SettingPeakEndHour:
			if value >= 1 && value <= 24 {
				s.Peak.EndHour = value
			}
		}
	}

	if s.Peak.StartHour >= s.Peak.EndHour {
		s.Peak = slots.PeakWindow{StartHour: defaults.PeakStartHour, EndHour: defaults.PeakEndHour}
	}
	return s
}
