// internal/api/availability/handlers.go
package availability

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/api/apiutil"
	avail "github.com/codr1/Courtside/internal/availability"
	"github.com/codr1/Courtside/internal/booking"
	"github.com/codr1/Courtside/internal/slots"
)

var (
	handlersMu sync.RWMutex
	calculator *avail.Calculator
	clock      = time.Now
)

var errNotInitialized = errors.New("availability handlers not initialized")

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(calc *avail.Calculator, now func() time.Time) {
	if calc == nil {
		return
	}
	handlersMu.Lock()
	defer handlersMu.Unlock()
	calculator = calc
	if now != nil {
		clock = now
	}
}

func load() (*avail.Calculator, func() time.Time) {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return calculator, clock
}

type bookableDatesResponse struct {
	Today      slots.Date   `json:"today"`
	WindowDays int          `json:"windowDays"`
	Dates      []slots.Date `json:"dates"`
	Date       *slots.Date  `json:"date,omitempty"`
	Bookable   *bool        `json:"bookable,omitempty"`
	OpensAt    *time.Time   `json:"opensAt,omitempty"`
}

// GET /api/v1/orgs/{slug}/availability?date=YYYY-MM-DD
func HandleDay(w http.ResponseWriter, r *http.Request) {
	calc, now := load()
	if calc == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}
	org, err := apiutil.Organization(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	d, err := apiutil.DateFromQuery(r, "date", slots.Today(now(), org.Location()))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	day, err := calc.Day(r.Context(), org, d)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, day)
}

// GET /api/v1/orgs/{slug}/courts/{courtID}/availability?date=YYYY-MM-DD
func HandleCourt(w http.ResponseWriter, r *http.Request) {
	calc, now := load()
	if calc == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}
	org, err := apiutil.Organization(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	courtID, err := apiutil.PathID(r, "courtID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	d, err := apiutil.DateFromQuery(r, "date", slots.Today(now(), org.Location()))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	day, err := calc.Court(r.Context(), org, courtID, d)
	if err != nil {
		if errors.Is(err, avail.ErrCourtNotFound) {
			err = &booking.Error{Code: booking.CodeCourtUnavailable, Message: "court not found", Err: err}
		}
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, day)
}

// GET /api/v1/orgs/{slug}/bookable-dates[?date=YYYY-MM-DD]
//
// With ?date the response also states whether that date is bookable and, if
// not yet, the instant its booking window opens.
func HandleBookableDates(w http.ResponseWriter, r *http.Request) {
	_, now := load()
	org, err := apiutil.Organization(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	loc := org.Location()
	current := now()
	windowDays := org.Settings.WindowDays

	resp := bookableDatesResponse{
		Today:      slots.Today(current, loc),
		WindowDays: windowDays,
		Dates:      slots.BookableDates(current, loc, windowDays),
	}

	if r.URL.Query().Has("date") {
		d, err := apiutil.DateFromQuery(r, "date", resp.Today)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		bookable := slots.IsBookable(d, current, loc, windowDays)
		resp.Date = &d
		resp.Bookable = &bookable
		if !bookable && !d.Before(resp.Today) {
			opens := slots.WindowOpensAt(d, loc, windowDays)
			resp.OpensAt = &opens
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := apiutil.WriteJSON(w, status, payload); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write response")
	}
}
