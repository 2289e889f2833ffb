package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/codr1/Courtside/internal/db/store"
)

// Code is a stable, caller-facing failure class.
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeNotAuthenticated  Code = "not_authenticated"
	CodeEmailUnverified   Code = "email_unverified"
	CodeForbidden         Code = "forbidden"
	CodeCourtUnavailable  Code = "court_unavailable"
	CodeSlotConflict      Code = "slot_conflict"
	CodeRateLimited       Code = "rate_limited"
	CodeNotFound          Code = "not_found"
	CodePersistence       Code = "persistence_error"
	CodeInvalidTransition Code = "invalid_transition"
)

type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrSlotConflict)
// holds regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrNotAuthenticated  = &Error{Code: CodeNotAuthenticated}
	ErrEmailUnverified   = &Error{Code: CodeEmailUnverified}
	ErrForbidden         = &Error{Code: CodeForbidden}
	ErrCourtUnavailable  = &Error{Code: CodeCourtUnavailable}
	ErrSlotConflict      = &Error{Code: CodeSlotConflict}
	ErrRateLimited       = &Error{Code: CodeRateLimited}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrPersistence       = &Error{Code: CodePersistence}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
)

// ErrPaymentReferenceMismatch is wrapped when a payment result names a charge
// other than the one issued for the booking.
var ErrPaymentReferenceMismatch = errors.New("payment reference mismatch")

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func conflict(message string) *Error {
	return &Error{Code: CodeSlotConflict, Message: message}
}

// CodeOf extracts the failure class of err. Untyped errors are persistence errors.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return CodePersistence
}

// Translate maps storage failures into the taxonomy. Typed errors pass through.
func Translate(err error, op string) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, store.ErrSlotConflict) {
		return &Error{Code: CodeSlotConflict, Message: "that slot was just taken, choose another", Err: err}
	}
	return &Error{Code: CodePersistence, Message: op + " failed", Err: err}
}
