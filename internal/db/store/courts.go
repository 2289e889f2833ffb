package store

import (
	"context"
	"database/sql"
	"time"
)

const courtColumns = `id, organization_id, name, is_active, is_indoor, open_time, close_time,
	slot_duration_minutes, base_price_cents, peak_price_cents, sort_order, created_at`

// GetCourt returns the court only if it belongs to the organization.
func (q *Queries) GetCourt(ctx context.Context, organizationID, courtID int64) (Court, error) {
	var court Court
	err := sqlxGet(ctx, q.db, &court,
		`SELECT `+courtColumns+` FROM courts WHERE id = ? AND organization_id = ?`,
		courtID, organizationID,
	)
	return court, err
}

func (q *Queries) ListActiveCourts(ctx context.Context, organizationID int64) ([]Court, error) {
	var courts []Court
	err := sqlxSelect(ctx, q.db, &courts,
		`SELECT `+courtColumns+` FROM courts
		 WHERE organization_id = ? AND is_active = 1
		 ORDER BY sort_order ASC, id ASC`,
		organizationID,
	)
	return courts, err
}

type CreateCourtParams struct {
	OrganizationID      int64
	Name                string
	IsActive            bool
	IsIndoor            bool
	OpenTime            string
	CloseTime           string
	SlotDurationMinutes int64
	BasePriceCents      int64
	PeakPriceCents      sql.NullInt64
	SortOrder           int64
}

func (q *Queries) CreateCourt(ctx context.Context, arg CreateCourtParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO courts (organization_id, name, is_active, is_indoor, open_time, close_time,
			slot_duration_minutes, base_price_cents, peak_price_cents, sort_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.OrganizationID, arg.Name, arg.IsActive, arg.IsIndoor, arg.OpenTime, arg.CloseTime,
		arg.SlotDurationMinutes, arg.BasePriceCents, arg.PeakPriceCents, arg.SortOrder,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) SetCourtActive(ctx context.Context, courtID int64, active bool) error {
	_, err := q.db.ExecContext(ctx, `UPDATE courts SET is_active = ? WHERE id = ?`, active, courtID)
	return err
}

const courtBlockColumns = `id, court_id, start_time, end_time, reason, description, created_by, created_at`

// ListOrganizationBlocks returns blocks on the organization's courts overlapping [start, end).
func (q *Queries) ListOrganizationBlocks(ctx context.Context, organizationID int64, start, end time.Time) ([]CourtBlock, error) {
	var blocks []CourtBlock
	err := sqlxSelect(ctx, q.db, &blocks,
		`SELECT cb.id, cb.court_id, cb.start_time, cb.end_time, cb.reason, cb.description, cb.created_by, cb.created_at
		 FROM court_blocks cb
		 JOIN courts c ON c.id = cb.court_id
		 WHERE c.organization_id = ?
		   AND cb.start_time < ?
		   AND cb.end_time > ?
		 ORDER BY cb.start_time ASC`,
		organizationID, ts(end), ts(start),
	)
	return blocks, err
}

func (q *Queries) CountOverlappingBlocks(ctx context.Context, courtID int64, start, end time.Time) (int64, error) {
	var count int64
	err := sqlxGet(ctx, q.db, &count,
		`SELECT COUNT(*) FROM court_blocks WHERE court_id = ? AND start_time < ? AND end_time > ?`,
		courtID, ts(end), ts(start),
	)
	return count, err
}

type CreateCourtBlockParams struct {
	CourtID     int64
	StartTime   time.Time
	EndTime     time.Time
	Reason      string
	Description sql.NullString
	CreatedBy   sql.NullInt64
}

func (q *Queries) CreateCourtBlock(ctx context.Context, arg CreateCourtBlockParams) (CourtBlock, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO court_blocks (court_id, start_time, end_time, reason, description, created_by)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		arg.CourtID, ts(arg.StartTime), ts(arg.EndTime), arg.Reason, arg.Description, arg.CreatedBy,
	)
	if err != nil {
		return CourtBlock{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return CourtBlock{}, err
	}
	var block CourtBlock
	err = sqlxGet(ctx, q.db, &block, `SELECT `+courtBlockColumns+` FROM court_blocks WHERE id = ?`, id)
	return block, err
}

// DeleteCourtBlock removes a block on one of the organization's courts and
// reports whether a row was deleted.
func (q *Queries) DeleteCourtBlock(ctx context.Context, organizationID, blockID int64) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM court_blocks
		 WHERE id = ? AND court_id IN (SELECT id FROM courts WHERE organization_id = ?)`,
		blockID, organizationID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
