package store

import (
	"context"
	"fmt"
)

const organizationColumns = `id, name, slug, timezone, currency, allow_guest_bookings, created_at`

func (q *Queries) GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error) {
	var org Organization
	err := sqlxGet(ctx, q.db, &org, `SELECT `+organizationColumns+` FROM organizations WHERE slug = ?`, slug)
	return org, err
}

func (q *Queries) GetOrganizationByID(ctx context.Context, id int64) (Organization, error) {
	var org Organization
	err := sqlxGet(ctx, q.db, &org, `SELECT `+organizationColumns+` FROM organizations WHERE id = ?`, id)
	return org, err
}

type CreateOrganizationParams struct {
	Name               string
	Slug               string
	Timezone           string
	Currency           string
	AllowGuestBookings bool
}

func (q *Queries) CreateOrganization(ctx context.Context, arg CreateOrganizationParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO organizations (name, slug, timezone, currency, allow_guest_bookings) VALUES (?, ?, ?, ?, ?)`,
		arg.Name, arg.Slug, arg.Timezone, arg.Currency, arg.AllowGuestBookings,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListAppSettings returns the global settings (organization 0) followed by the
// organization's own overrides.
func (q *Queries) ListAppSettings(ctx context.Context, organizationID int64) ([]AppSetting, error) {
	var settings []AppSetting
	err := sqlxSelect(ctx, q.db, &settings,
		`SELECT organization_id, key, value, updated_at
		 FROM app_settings
		 WHERE organization_id IN (0, ?)
		 ORDER BY organization_id ASC, key ASC`,
		organizationID,
	)
	return settings, err
}

func (q *Queries) UpsertAppSetting(ctx context.Context, organizationID int64, key, value string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO app_settings (organization_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (organization_id, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		organizationID, key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert app setting %s: %w", key, err)
	}
	return nil
}

func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	var user User
	err := sqlxGet(ctx, q.db, &user, `SELECT id, email, name, email_verified, created_at FROM users WHERE id = ?`, id)
	return user, err
}

type CreateUserParams struct {
	Email         string
	Name          string
	EmailVerified bool
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO users (email, name, email_verified) VALUES (?, ?, ?)`,
		arg.Email, arg.Name, arg.EmailVerified,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) AddOrganizationMember(ctx context.Context, organizationID, userID int64, role string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO organization_members (organization_id, user_id, role) VALUES (?, ?, ?)
		 ON CONFLICT (organization_id, user_id) DO UPDATE SET role = excluded.role`,
		organizationID, userID, role,
	)
	return err
}

// GetMemberRole returns sql.ErrNoRows when the user is not a member.
func (q *Queries) GetMemberRole(ctx context.Context, organizationID, userID int64) (string, error) {
	var role string
	err := sqlxGet(ctx, q.db, &role,
		`SELECT role FROM organization_members WHERE organization_id = ? AND user_id = ?`,
		organizationID, userID,
	)
	return role, err
}
