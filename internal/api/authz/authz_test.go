package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/codr1/Courtside/internal/booking"
	"github.com/codr1/Courtside/internal/models"
	"github.com/codr1/Courtside/internal/testutil"
)

func TestUserFromContextNil(t *testing.T) {
	if UserFromContext(nil) != nil {
		t.Fatal("expected nil user for nil context")
	}
	if UserFromContext(context.Background()) != nil {
		t.Fatal("expected nil user for empty context")
	}
}

func TestOrganizationRoundTrip(t *testing.T) {
	org := &models.Organization{ID: 7, Slug: "riverside"}
	ctx := ContextWithOrganization(context.Background(), org)
	if got := OrganizationFromContext(ctx); got == nil || got.ID != 7 {
		t.Fatalf("unexpected organization: %#v", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name string
		user *booking.User
		want error
	}{
		{"anonymous", nil, ErrUnauthenticated},
		{"member", &booking.User{ID: 1}, ErrForbidden},
		{"admin", &booking.User{ID: 1, IsAdmin: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.user != nil {
				ctx = ContextWithUser(ctx, tt.user)
			}
			if err := RequireAdmin(ctx); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestResolveUser(t *testing.T) {
	database := testutil.NewTestDB(t)
	orgID, _ := testutil.SeedOrganization(t, database, testutil.OrgOptions{})
	otherOrgID, _ := testutil.SeedOrganization(t, database, testutil.OrgOptions{})

	adminID := testutil.SeedUser(t, database, orgID, RoleAdmin, true)
	memberID := testutil.SeedUser(t, database, orgID, "member", false)
	outsiderID := testutil.SeedUser(t, database, otherOrgID, RoleAdmin, true)

	ctx := context.Background()
	tests := []struct {
		name         string
		userID       int64
		wantAdmin    bool
		wantVerified bool
	}{
		{"admin", adminID, true, true},
		{"unverified member", memberID, false, false},
		{"admin elsewhere", outsiderID, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := ResolveUser(ctx, database.Queries, orgID, tt.userID)
			if err != nil {
				t.Fatalf("ResolveUser: %v", err)
			}
			if user.ID != tt.userID || user.IsAdmin != tt.wantAdmin || user.EmailVerified != tt.wantVerified {
				t.Fatalf("unexpected user: %#v", user)
			}
		})
	}

	if _, err := ResolveUser(ctx, database.Queries, orgID, 999999); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for unknown user, got %v", err)
	}
}
