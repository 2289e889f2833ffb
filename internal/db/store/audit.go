package store

import (
	"context"
	"database/sql"
)

type CreateAuditEventParams struct {
	OrganizationID int64
	ActorID        sql.NullInt64
	Action         string
	EntityType     string
	EntityID       int64
	BeforeState    sql.NullString
	AfterState     sql.NullString
}

func (q *Queries) CreateAuditEvent(ctx context.Context, arg CreateAuditEventParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO audit_log (organization_id, actor_id, action, entity_type, entity_id, before_state, after_state)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		arg.OrganizationID, arg.ActorID, arg.Action, arg.EntityType, arg.EntityID, arg.BeforeState, arg.AfterState,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) ListAuditEvents(ctx context.Context, entityType string, entityID int64) ([]AuditEvent, error) {
	var events []AuditEvent
	err := sqlxSelect(ctx, q.db, &events,
		`SELECT id, organization_id, actor_id, action, entity_type, entity_id, before_state, after_state, created_at
		 FROM audit_log WHERE entity_type = ? AND entity_id = ? ORDER BY id ASC`,
		entityType, entityID,
	)
	return events, err
}

// MarkEventProcessed records a consumed message id. It reports false when the
// id was already recorded.
func (q *Queries) MarkEventProcessed(ctx context.Context, id, eventKey string) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO processed_events (id, event_key) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
		id, eventKey,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (q *Queries) EventProcessed(ctx context.Context, id string) (bool, error) {
	var count int64
	err := sqlxGet(ctx, q.db, &count, `SELECT COUNT(*) FROM processed_events WHERE id = ?`, id)
	return count > 0, err
}
