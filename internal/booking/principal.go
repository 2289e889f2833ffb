package booking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"golang.org/x/crypto/bcrypt"
)

// User is the authenticated caller as resolved by the identity collaborator.
type User struct {
	ID            int64
	Email         string
	EmailVerified bool
	IsAdmin       bool
}

type GuestInfo struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// Principal is whoever acts on a booking: a signed-in user, a guest supplying
// contact details, or a guest holding a manage token.
type Principal struct {
	User       *User
	Guest      *GuestInfo
	GuestToken string
	ClientIP   string
}

func (p Principal) actorID() *int64 {
	if p.User == nil {
		return nil
	}
	id := p.User.ID
	return &id
}

func (p Principal) isAdmin() bool {
	return p.User != nil && p.User.IsAdmin
}

// RateLimitKey identifies the principal for attempt counting. Guests are
// counted by client address since the email they send is theirs to change.
func (p Principal) RateLimitKey() string {
	switch {
	case p.User != nil:
		return "user:" + strconv.FormatInt(p.User.ID, 10)
	case p.ClientIP != "":
		return "ip:" + p.ClientIP
	case p.Guest != nil && p.Guest.Email != "":
		return "guest:" + strings.ToLower(strings.TrimSpace(p.Guest.Email))
	default:
		return "ip:"
	}
}

var validate = validator.New()

// Validator returns the shared struct validator.
func Validator() *validator.Validate {
	return validate
}

// NormalizeGuest validates guest contact details and formats the phone number
// as E.164, parsing national numbers in defaultRegion.
func NormalizeGuest(g GuestInfo, defaultRegion string) (GuestInfo, error) {
	g.Name = strings.TrimSpace(g.Name)
	g.Email = strings.ToLower(strings.TrimSpace(g.Email))
	g.Phone = strings.TrimSpace(g.Phone)
	if err := validate.Struct(g); err != nil {
		return GuestInfo{}, &Error{Code: CodeValidation, Message: "invalid guest details", Err: err}
	}
	if g.Phone != "" {
		phone, err := NormalizePhone(g.Phone, defaultRegion)
		if err != nil {
			return GuestInfo{}, &Error{Code: CodeValidation, Message: "invalid guest phone number", Err: err}
		}
		g.Phone = phone
	}
	return g, nil
}

func NormalizePhone(raw, defaultRegion string) (string, error) {
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '@' {
			return "", fmt.Errorf("phone number %q contains letters", raw)
		}
	}
	num, err := phonenumbers.Parse(raw, strings.ToUpper(defaultRegion))
	if err != nil {
		return "", fmt.Errorf("parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("phone number %q is not valid", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// newGuestToken returns a manage token for the guest and its bcrypt hash. Only
// the hash is stored.
func newGuestToken(cost int) (string, string, error) {
	token := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", "", fmt.Errorf("hash guest token: %w", err)
	}
	return token, string(hash), nil
}

func verifyGuestToken(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
