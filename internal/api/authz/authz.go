package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/codr1/Courtside/internal/booking"
	"github.com/codr1/Courtside/internal/db/store"
	"github.com/codr1/Courtside/internal/models"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// RoleAdmin is the organization membership role that grants administration.
const RoleAdmin = "admin"

type userContextKey struct{}
type organizationContextKey struct{}

func ContextWithUser(ctx context.Context, user *booking.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the user stored in ctx.
// It returns nil if ctx is nil, if no user is stored, or if the stored value has a different type.
func UserFromContext(ctx context.Context) *booking.User {
	if ctx == nil {
		return nil
	}
	user, ok := ctx.Value(userContextKey{}).(*booking.User)
	if !ok {
		return nil
	}
	return user
}

func ContextWithOrganization(ctx context.Context, org *models.Organization) context.Context {
	return context.WithValue(ctx, organizationContextKey{}, org)
}

func OrganizationFromContext(ctx context.Context) *models.Organization {
	if ctx == nil {
		return nil
	}
	org, ok := ctx.Value(organizationContextKey{}).(*models.Organization)
	if !ok {
		return nil
	}
	return org
}

// RequireAdmin reports ErrUnauthenticated without a user in ctx and
// ErrForbidden for a user who does not administer the organization.
func RequireAdmin(ctx context.Context) error {
	user := UserFromContext(ctx)
	if user == nil {
		return ErrUnauthenticated
	}
	if !user.IsAdmin {
		return ErrForbidden
	}
	return nil
}

type IdentityQueries interface {
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	GetMemberRole(ctx context.Context, organizationID, userID int64) (string, error)
}

// ResolveUser loads a user and their standing in organizationID. A user with
// no membership row may still book as a regular player. A missing user is
// ErrUnauthenticated.
func ResolveUser(ctx context.Context, q IdentityQueries, organizationID, userID int64) (*booking.User, error) {
	row, err := q.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}

	role, err := q.GetMemberRole(ctx, organizationID, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load membership for user %d: %w", userID, err)
	}

	return &booking.User{
		ID:            row.ID,
		Email:         row.Email,
		EmailVerified: row.EmailVerified,
		IsAdmin:       strings.EqualFold(role, RoleAdmin),
	}, nil
}
