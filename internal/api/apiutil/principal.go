package apiutil

import (
	"errors"
	"net/http"

	"github.com/codr1/Courtside/internal/api/authz"
	"github.com/codr1/Courtside/internal/booking"
	"github.com/codr1/Courtside/internal/models"
	"github.com/codr1/Courtside/internal/ratelimit"
)

// GuestTokenHeader carries a guest's booking manage token.
const GuestTokenHeader = "X-Guest-Token"

var errNoOrganization = errors.New("organization missing from request context")

// Organization returns the tenant resolved by the organization middleware.
func Organization(r *http.Request) (models.Organization, error) {
	org := authz.OrganizationFromContext(r.Context())
	if org == nil {
		return models.Organization{}, errNoOrganization
	}
	return *org, nil
}

// Principal builds the acting principal from the request context. Guest
// details are filled in by handlers that accept them.
func Principal(r *http.Request, trustProxy bool) booking.Principal {
	return booking.Principal{
		User:       authz.UserFromContext(r.Context()),
		GuestToken: r.Header.Get(GuestTokenHeader),
		ClientIP:   ratelimit.GetClientIP(r, trustProxy),
	}
}
