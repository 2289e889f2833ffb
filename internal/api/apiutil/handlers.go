package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/api/authz"
	"github.com/codr1/Courtside/internal/booking"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("missing request body")
		}
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

type ErrorDetail struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds *int64 `json:"retry_after_seconds,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// StatusFor maps a failure class to its HTTP status.
func StatusFor(code booking.Code) int {
	switch code {
	case booking.CodeValidation:
		return http.StatusBadRequest
	case booking.CodeNotAuthenticated:
		return http.StatusUnauthorized
	case booking.CodeEmailUnverified, booking.CodeForbidden:
		return http.StatusForbidden
	case booking.CodeCourtUnavailable, booking.CodeNotFound:
		return http.StatusNotFound
	case booking.CodeSlotConflict, booking.CodeInvalidTransition:
		return http.StatusConflict
	case booking.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON error body. Booking errors keep their code,
// request-shape errors become validation errors, and anything else is logged
// and reported without detail.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.Ctx(r.Context())

	detail := ErrorDetail{}
	status := http.StatusInternalServerError

	var (
		be    *booking.Error
		he    HandlerError
		field FieldError
	)
	switch {
	case errors.As(err, &be):
		detail.Code = string(be.Code)
		detail.Message = be.Message
		status = StatusFor(be.Code)
		if be.RetryAfter > 0 {
			seconds := int64(math.Ceil(be.RetryAfter.Seconds()))
			detail.RetryAfterSeconds = &seconds
			w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		}
	case errors.As(err, &field):
		detail.Code = string(booking.CodeValidation)
		detail.Message = field.Error()
		status = http.StatusBadRequest
	case errors.As(err, &he):
		status = he.Status
		detail.Code = codeForStatus(he.Status)
		detail.Message = he.Message
	case errors.Is(err, authz.ErrUnauthenticated):
		status = http.StatusUnauthorized
		detail.Code = string(booking.CodeNotAuthenticated)
		detail.Message = "sign in to continue"
	case errors.Is(err, authz.ErrForbidden):
		status = http.StatusForbidden
		detail.Code = string(booking.CodeForbidden)
		detail.Message = "not allowed"
	default:
		detail.Code = string(booking.CodePersistence)
	}

	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("Request failed")
		if detail.Message == "" || be == nil {
			detail.Message = "internal server error"
		}
	} else {
		logger.Debug().Err(err).Int("status", status).Str("code", detail.Code).Msg("Request rejected")
	}

	if writeErr := WriteJSON(w, status, ErrorResponse{Error: detail}); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write error response")
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(booking.CodeValidation)
	case http.StatusUnauthorized:
		return string(booking.CodeNotAuthenticated)
	case http.StatusForbidden:
		return string(booking.CodeForbidden)
	case http.StatusNotFound:
		return string(booking.CodeNotFound)
	case http.StatusConflict:
		return string(booking.CodeInvalidTransition)
	case http.StatusTooManyRequests:
		return string(booking.CodeRateLimited)
	default:
		return string(booking.CodePersistence)
	}
}

// BadRequest wraps a request-shape failure as a 400.
func BadRequest(err error) error {
	return HandlerError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
}
