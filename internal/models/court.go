// internal/models/court.go
package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codr1/Courtside/internal/db/store"
	"github.com/codr1/Courtside/internal/slots"
)

type Court struct {
	ID                  int64           `json:"id"`
	OrganizationID      int64           `json:"organizationId"`
	Name                string          `json:"name"`
	IsActive            bool            `json:"isActive"`
	IsIndoor            bool            `json:"isIndoor"`
	OpenTime            slots.TimeOfDay `json:"-"`
	CloseTime           slots.TimeOfDay `json:"-"`
	SlotDurationMinutes int             `json:"slotDurationMinutes"`
	BasePriceCents      int64           `json:"basePriceCents"`
	PeakPriceCents      *int64          `json:"peakPriceCents,omitempty"`
	SortOrder           int64           `json:"sortOrder"`
}

func CourtFromRow(row store.Court) (Court, error) {
	open, err := slots.ParseTimeOfDay(row.OpenTime)
	if err != nil {
		return Court{}, fmt.Errorf("court %d open_time: %w", row.ID, err)
	}
	closeAt, err := slots.ParseTimeOfDay(row.CloseTime)
	if err != nil {
		return Court{}, fmt.Errorf("court %d close_time: %w", row.ID, err)
	}

	court := Court{
		ID:                  row.ID,
		OrganizationID:      row.OrganizationID,
		Name:                row.Name,
		IsActive:            row.IsActive,
		IsIndoor:            row.IsIndoor,
		OpenTime:            open,
		CloseTime:           closeAt,
		SlotDurationMinutes: int(row.SlotDurationMinutes),
		BasePriceCents:      row.BasePriceCents,
		SortOrder:           row.SortOrder,
	}
	if row.PeakPriceCents.Valid {
		peak := row.PeakPriceCents.Int64
		court.PeakPriceCents = &peak
	}
	return court, nil
}

func (c Court) Rates() slots.Rates {
	return slots.Rates{BasePerHourCents: c.BasePriceCents, PeakPerHourCents: c.PeakPriceCents}
}

// Slots generates the court's candidate slots for one local date.
func (c Court) Slots(d slots.Date, loc *time.Location) []slots.Slot {
	return slots.Generate(d, c.OpenTime, c.CloseTime, c.SlotDurationMinutes, loc)
}

type BlockReason string

const (
	BlockMaintenance  BlockReason = "MAINTENANCE"
	BlockTournament   BlockReason = "TOURNAMENT"
	BlockPrivateEvent BlockReason = "PRIVATE_EVENT"
	BlockOther        BlockReason = "OTHER"
)

var ErrInvalidBlockReason = errors.New("invalid block reason")

func ParseBlockReason(value string) (BlockReason, error) {
	switch r := BlockReason(value); r {
	case BlockMaintenance, BlockTournament, BlockPrivateEvent, BlockOther:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBlockReason, value)
}

type CourtBlock struct {
	ID          int64       `json:"id"`
	CourtID     int64       `json:"courtId"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     time.Time   `json:"endTime"`
	Reason      BlockReason `json:"reason"`
	Description *string     `json:"description,omitempty"`
	CreatedBy   *int64      `json:"createdBy,omitempty"`
}

func CourtBlockFromRow(row store.CourtBlock) CourtBlock {
	return CourtBlock{
		ID:          row.ID,
		CourtID:     row.CourtID,
		StartTime:   row.StartTime,
		EndTime:     row.EndTime,
		Reason:      BlockReason(row.Reason),
		Description: stringPtr(row.Description),
		CreatedBy:   int64Ptr(row.CreatedBy),
	}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
