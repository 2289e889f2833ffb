package store

import (
	"context"
	"database/sql"
)

type CreateGuestParams struct {
	OrganizationID int64
	Name           string
	Email          string
	Phone          sql.NullString
	TokenHash      string
}

func (q *Queries) CreateGuest(ctx context.Context, arg CreateGuestParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO guests (organization_id, name, email, phone, token_hash) VALUES (?, ?, ?, ?, ?)`,
		arg.OrganizationID, arg.Name, arg.Email, arg.Phone, arg.TokenHash,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) GetGuest(ctx context.Context, id int64) (Guest, error) {
	var guest Guest
	err := sqlxGet(ctx, q.db, &guest,
		`SELECT id, organization_id, name, email, phone, token_hash, created_at FROM guests WHERE id = ?`, id)
	return guest, err
}
