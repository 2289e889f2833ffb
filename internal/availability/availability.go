// Package availability annotates generated court slots with whether they
// can still be booked and aggregates them across an organization's courts.
package availability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/Courtside/internal/db/store"
	"github.com/codr1/Courtside/internal/models"
	"github.com/codr1/Courtside/internal/slots"
)

var ErrCourtNotFound = errors.New("court not found")

// Reasons a slot is unavailable.
const (
	ReasonPast        = "past"
	ReasonBooked      = "booked"
	ReasonBlocked     = "blocked"
	ReasonOutOfWindow = "outside_window"
)

type Queries interface {
	GetCourt(ctx context.Context, organizationID, courtID int64) (store.Court, error)
	ListActiveCourts(ctx context.Context, organizationID int64) ([]store.Court, error)
	ListOccupiedSlots(ctx context.Context, organizationID int64, start, end time.Time) ([]store.OccupiedSlot, error)
	ListOrganizationBlocks(ctx context.Context, organizationID int64, start, end time.Time) ([]store.CourtBlock, error)
}

// Interval is a half-open [Start, End) occupation of one court.
type Interval struct {
	CourtID int64
	Start   time.Time
	End     time.Time
}

type SlotState struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	LocalTime   string    `json:"localTime"`
	Peak        bool      `json:"peak"`
	PriceCents  int64     `json:"priceCents"`
	IsAvailable bool      `json:"isAvailable"`
	Reason      string    `json:"reason,omitempty"`
}

type CourtDay struct {
	CourtID   int64       `json:"courtId"`
	CourtName string      `json:"courtName"`
	Slots     []SlotState `json:"slots"`
}

type CourtSlot struct {
	CourtID     int64  `json:"courtId"`
	CourtName   string `json:"courtName"`
	IsAvailable bool   `json:"isAvailable"`
	PriceCents  int64  `json:"priceCents"`
	Peak        bool   `json:"peak"`
}

// TimeSummary powers the "N/M courts available" calendar cell.
type TimeSummary struct {
	LocalTime      string      `json:"localTime"`
	Start          time.Time   `json:"start"`
	End            time.Time   `json:"end"`
	AvailableCount int         `json:"availableCount"`
	TotalCourts    int         `json:"totalCourts"`
	Courts         []CourtSlot `json:"courts"`
}

type DayAvailability struct {
	Date     slots.Date    `json:"date"`
	Bookable bool          `json:"bookable"`
	OpensAt  *time.Time    `json:"opensAt,omitempty"`
	Courts   []CourtDay    `json:"courts"`
	Times    []TimeSummary `json:"times"`
}

// Mark annotates quotes for one court. A slot is unavailable when it starts
// at or before now, or overlaps any occupied or blocked interval.
func Mark(quotes []slots.Quote, now time.Time, occupied, blocked []Interval) []SlotState {
	out := make([]SlotState, 0, len(quotes))
	for _, q := range quotes {
		state := SlotState{
			Start:       q.Start,
			End:         q.End,
			LocalTime:   q.Local.String(),
			Peak:        q.Peak,
			PriceCents:  q.PriceCents,
			IsAvailable: true,
		}
		switch {
		case !q.Start.After(now):
			state.IsAvailable, state.Reason = false, ReasonPast
		case overlapsAny(q.Slot, occupied):
			state.IsAvailable, state.Reason = false, ReasonBooked
		case overlapsAny(q.Slot, blocked):
			state.IsAvailable, state.Reason = false, ReasonBlocked
		}
		out = append(out, state)
	}
	return out
}

func overlapsAny(s slots.Slot, intervals []Interval) bool {
	for _, iv := range intervals {
		if slots.Overlaps(s.Start, s.End, iv.Start, iv.End) {
			return true
		}
	}
	return false
}

type Calculator struct {
	q   Queries
	now func() time.Time
}

func NewCalculator(q Queries, now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{q: q, now: now}
}

// Court returns one court's slots for date d.
func (c *Calculator) Court(ctx context.Context, org models.Organization, courtID int64, d slots.Date) (CourtDay, error) {
	row, err := c.q.GetCourt(ctx, org.ID, courtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CourtDay{}, ErrCourtNotFound
		}
		return CourtDay{}, fmt.Errorf("load court %d: %w", courtID, err)
	}
	if !row.IsActive {
		return CourtDay{}, ErrCourtNotFound
	}
	court, err := models.CourtFromRow(row)
	if err != nil {
		return CourtDay{}, err
	}

	occupied, blocked, err := c.loadDay(ctx, org, d)
	if err != nil {
		return CourtDay{}, err
	}
	now := c.now()
	day := []CourtDay{c.courtDay(org, court, d, now, occupied[court.ID], blocked[court.ID])}
	if !slots.IsBookable(d, now, org.Location(), org.Settings.WindowDays) {
		markOutOfWindow(day)
	}
	return day[0], nil
}

// Day returns every active court's slots for date d plus the per-time aggregation.
func (c *Calculator) Day(ctx context.Context, org models.Organization, d slots.Date) (DayAvailability, error) {
	logger := log.Ctx(ctx)
	loc := org.Location()
	now := c.now()

	out := DayAvailability{
		Date:     d,
		Bookable: slots.IsBookable(d, now, loc, org.Settings.WindowDays),
	}
	if !out.Bookable && d.After(slots.Today(now, loc)) {
		opens := slots.WindowOpensAt(d, loc, org.Settings.WindowDays)
		out.OpensAt = &opens
	}

	rows, err := c.q.ListActiveCourts(ctx, org.ID)
	if err != nil {
		return DayAvailability{}, fmt.Errorf("list courts: %w", err)
	}

	occupied, blocked, err := c.loadDay(ctx, org, d)
	if err != nil {
		return DayAvailability{}, err
	}

	out.Courts = make([]CourtDay, 0, len(rows))
	for _, row := range rows {
		court, err := models.CourtFromRow(row)
		if err != nil {
			logger.Error().Err(err).Int64("court_id", row.ID).Msg("Skipping court with invalid operating hours")
			continue
		}
		out.Courts = append(out.Courts, c.courtDay(org, court, d, now, occupied[court.ID], blocked[court.ID]))
	}
	if !out.Bookable {
		markOutOfWindow(out.Courts)
	}
	out.Times = Aggregate(out.Courts)
	return out, nil
}

func markOutOfWindow(courts []CourtDay) {
	for i := range courts {
		for j := range courts[i].Slots {
			s := &courts[i].Slots[j]
			if s.IsAvailable {
				s.IsAvailable, s.Reason = false, ReasonOutOfWindow
			}
		}
	}
}

func (c *Calculator) courtDay(org models.Organization, court models.Court, d slots.Date, now time.Time, occupied, blocked []Interval) CourtDay {
	loc := org.Location()
	quotes, _ := slots.PriceAll(court.Slots(d, loc), loc, org.Settings.Peak, court.Rates())
	return CourtDay{
		CourtID:   court.ID,
		CourtName: court.Name,
		Slots:     Mark(quotes, now, occupied, blocked),
	}
}

// loadDay reads occupied slots and blocks for the local day concurrently,
// grouped by court.
func (c *Calculator) loadDay(ctx context.Context, org models.Organization, d slots.Date) (map[int64][]Interval, map[int64][]Interval, error) {
	loc := org.Location()
	start := slots.Midnight(d, loc)
	end := slots.Midnight(d.AddDays(1), loc)

	var occupiedRows []store.OccupiedSlot
	var blockRows []store.CourtBlock

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := c.q.ListOccupiedSlots(gctx, org.ID, start, end)
		if err != nil {
			return fmt.Errorf("list occupied slots: %w", err)
		}
		occupiedRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := c.q.ListOrganizationBlocks(gctx, org.ID, start, end)
		if err != nil {
			return fmt.Errorf("list court blocks: %w", err)
		}
		blockRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	occupied := make(map[int64][]Interval)
	for _, row := range occupiedRows {
		occupied[row.CourtID] = append(occupied[row.CourtID], Interval{CourtID: row.CourtID, Start: row.StartTime, End: row.EndTime})
	}
	blocked := make(map[int64][]Interval)
	for _, row := range blockRows {
		blocked[row.CourtID] = append(blocked[row.CourtID], Interval{CourtID: row.CourtID, Start: row.StartTime, End: row.EndTime})
	}
	return occupied, blocked, nil
}

// Aggregate groups court slots by local start time. It assumes courts share
// slot granularity; courts whose slots start at other times get their own rows.
func Aggregate(courts []CourtDay) []TimeSummary {
	byTime := make(map[string]*TimeSummary)
	for _, court := range courts {
		for _, s := range court.Slots {
			summary, ok := byTime[s.LocalTime]
			if !ok {
				summary = &TimeSummary{LocalTime: s.LocalTime, Start: s.Start, End: s.End}
				byTime[s.LocalTime] = summary
			}
			summary.TotalCourts++
			if s.IsAvailable {
				summary.AvailableCount++
			}
			summary.Courts = append(summary.Courts, CourtSlot{
				CourtID:     court.CourtID,
				CourtName:   court.CourtName,
				IsAvailable: s.IsAvailable,
				PriceCents:  s.PriceCents,
				Peak:        s.Peak,
			})
		}
	}

	out := make([]TimeSummary, 0, len(byTime))
	for _, summary := range byTime {
		out = append(out, *summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].LocalTime < out[j].LocalTime
	})
	return out
}
