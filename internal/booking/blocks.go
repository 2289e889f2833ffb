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
	"github.com/codr1/Courtside/internal/models"
)

type BlockRequest struct {
	CourtID     int64     `json:"courtId" validate:"required,gt=0"`
	Start       time.Time `json:"startTime" validate:"required"`
	End         time.Time `json:"endTime" validate:"required,gtfield=Start"`
	Reason      string    `json:"reason" validate:"required"`
	Description string    `json:"description,omitempty" validate:"max=500"`
}

// CreateBlock closes a court for an interval. Blocks may overlap each other but
// not a pending or confirmed booking slot.
func (s *Service) CreateBlock(ctx context.Context, org models.Organization, p Principal, req BlockRequest) (models.CourtBlock, error) {
	if err := RequireAdmin(p); err != nil {
		return models.CourtBlock{}, err
	}
	if err := validate.Struct(req); err != nil {
		return models.CourtBlock{}, &Error{Code: CodeValidation, Message: "invalid block", Err: err}
	}
	reason, err := models.ParseBlockReason(strings.ToUpper(strings.TrimSpace(req.Reason)))
	if err != nil {
		return models.CourtBlock{}, &Error{Code: CodeValidation, Message: "unknown block reason", Err: err}
	}

	var row store.CourtBlock
	err = s.tx.WithinTx(ctx, func(q Querier) error {
		if _, err := q.GetCourt(ctx, org.ID, req.CourtID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return newError(CodeNotFound, "court not found")
			}
			return fmt.Errorf("load court: %w", err)
		}
		held, err := q.CountHoldingOverlaps(ctx, req.CourtID, req.Start, req.End)
		if err != nil {
			return fmt.Errorf("check booked overlap: %w", err)
		}
		if held > 0 {
			return conflict("the block overlaps an existing booking, cancel it first")
		}
		desc := strings.TrimSpace(req.Description)
		row, err = q.CreateCourtBlock(ctx, store.CreateCourtBlockParams{
			CourtID:     req.CourtID,
			StartTime:   req.Start,
			EndTime:     req.End,
			Reason:      string(reason),
			Description: sql.NullString{String: desc, Valid: desc != ""},
			CreatedBy:   store.NullInt64(p.actorID()),
		})
		return err
	})
	if err != nil {
		return models.CourtBlock{}, Translate(err, "create block")
	}

	block := models.CourtBlockFromRow(row)
	log.Ctx(ctx).Info().
		Int64("block_id", block.ID).
		Int64("court_id", block.CourtID).
		Str("reason", string(block.Reason)).
		Msg("Court block created")
	s.audit.RecordOrLog(ctx, audit.Event{
		OrganizationID: org.ID,
		ActorID:        p.actorID(),
		Action:         audit.ActionBlockCreated,
		EntityType:     audit.EntityBlock,
		EntityID:       block.ID,
		After:          block,
	})
	return block, nil
}

func (s *Service) DeleteBlock(ctx context.Context, org models.Organization, p Principal, blockID int64) error {
	if err := RequireAdmin(p); err != nil {
		return err
	}
	deleted, err := s.queries.DeleteCourtBlock(ctx, org.ID, blockID)
	if err != nil {
		return Translate(err, "delete block")
	}
	if !deleted {
		return newError(CodeNotFound, "block not found")
	}
	s.audit.RecordOrLog(ctx, audit.Event{
		OrganizationID: org.ID,
		ActorID:        p.actorID(),
		Action:         audit.ActionBlockDeleted,
		EntityType:     audit.EntityBlock,
		EntityID:       blockID,
	})
	return nil
}
