// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/api/apiutil"
	"github.com/codr1/Courtside/internal/booking"
	"github.com/codr1/Courtside/internal/models"
)

const bookingRequestTimeout = 10 * time.Second

var (
	handlersMu sync.RWMutex
	service    *booking.Service
	trustProxy bool
)

var errNotInitialized = errors.New("booking handlers not initialized")

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *booking.Service, trustProxyHeaders bool) {
	if svc == nil {
		return
	}
	handlersMu.Lock()
	defer handlersMu.Unlock()
	service = svc
	trustProxy = trustProxyHeaders
}

func loadService() (*booking.Service, bool) {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return service, trustProxy
}

type createRequest struct {
	BookingType models.BookingType    `json:"bookingType"`
	Slots       []booking.SlotRequest `json:"slots"`
	Guest       *booking.GuestInfo    `json:"guest,omitempty"`
}

type consecutiveRequest struct {
	BookingType models.BookingType `json:"bookingType"`
	CourtID     int64              `json:"courtId"`
	StartTime   time.Time          `json:"startTime"`
	SlotCount   int                `json:"slotCount"`
	Guest       *booking.GuestInfo `json:"guest,omitempty"`
}

type cancelRequest struct {
	Reason     string `json:"reason,omitempty"`
	GuestToken string `json:"guestToken,omitempty"`
}

// POST /api/v1/orgs/{slug}/bookings
func HandleCreate(w http.ResponseWriter, r *http.Request) {
	svc, org, p, ok := prepare(w, r)
	if !ok {
		return
	}

	var req createRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}
	p.Guest = guestFor(p, req.Guest)

	ctx, cancel := context.WithTimeout(r.Context(), bookingRequestTimeout)
	defer cancel()

	res, err := svc.CreateReservation(ctx, org, p, bookingTypeOrDefault(req.BookingType), req.Slots)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, res)
}

// POST /api/v1/orgs/{slug}/bookings/consecutive
func HandleCreateConsecutive(w http.ResponseWriter, r *http.Request) {
	svc, org, p, ok := prepare(w, r)
	if !ok {
		return
	}

	var req consecutiveRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}
	if req.StartTime.IsZero() {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "startTime", Reason: "is required"})
		return
	}
	p.Guest = guestFor(p, req.Guest)

	ctx, cancel := context.WithTimeout(r.Context(), bookingRequestTimeout)
	defer cancel()

	res, err := svc.CreateConsecutiveReservation(ctx, org, p, bookingTypeOrDefault(req.BookingType), req.CourtID, req.StartTime, req.SlotCount)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, res)
}

// GET /api/v1/orgs/{slug}/bookings/{id}
func HandleGet(w http.ResponseWriter, r *http.Request) {
	svc, org, p, ok := prepare(w, r)
	if !ok {
		return
	}
	bookingID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	view, err := svc.GetBooking(r.Context(), org, p, bookingID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// POST /api/v1/orgs/{slug}/bookings/{id}/payment/sync
func HandleSyncPayment(w http.ResponseWriter, r *http.Request) {
	svc, org, p, ok := prepare(w, r)
	if !ok {
		return
	}
	bookingID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingRequestTimeout)
	defer cancel()

	view, err := svc.GetBooking(ctx, org, p, bookingID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if view.Booking.Status != models.StatusPendingPayment {
		writeJSON(w, r, http.StatusOK, view)
		return
	}
	if _, err := svc.SyncPayment(ctx, bookingID); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	view, err = svc.GetBooking(ctx, org, p, bookingID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// POST /api/v1/orgs/{slug}/bookings/{id}/cancel
func HandleCancel(w http.ResponseWriter, r *http.Request) {
	svc, org, p, ok := prepare(w, r)
	if !ok {
		return
	}
	bookingID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req cancelRequest
	if r.ContentLength != 0 {
		if err := apiutil.DecodeJSON(r, &req); err != nil {
			apiutil.WriteError(w, r, apiutil.BadRequest(err))
			return
		}
	}
	if token := strings.TrimSpace(req.GuestToken); token != "" {
		p.GuestToken = token
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingRequestTimeout)
	defer cancel()

	b, err := svc.Cancel(ctx, org, p, bookingID, req.Reason)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}

// POST /api/v1/orgs/{slug}/admin/bookings/{id}/complete
func HandleComplete(w http.ResponseWriter, r *http.Request) {
	closeOut(w, r, (*booking.Service).Complete)
}

// POST /api/v1/orgs/{slug}/admin/bookings/{id}/no-show
func HandleNoShow(w http.ResponseWriter, r *http.Request) {
	closeOut(w, r, (*booking.Service).MarkNoShow)
}

type closeOutFunc func(*booking.Service, context.Context, models.Organization, booking.Principal, int64) (models.Booking, error)

func closeOut(w http.ResponseWriter, r *http.Request, fn closeOutFunc) {
	svc, org, p, ok := prepare(w, r)
	if !ok {
		return
	}
	bookingID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	b, err := fn(svc, r.Context(), org, p, bookingID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, b)
}

func prepare(w http.ResponseWriter, r *http.Request) (*booking.Service, models.Organization, booking.Principal, bool) {
	svc, trust := loadService()
	if svc == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return nil, models.Organization{}, booking.Principal{}, false
	}
	org, err := apiutil.Organization(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return nil, models.Organization{}, booking.Principal{}, false
	}
	return svc, org, apiutil.Principal(r, trust), true
}

// guestFor attaches guest details only to anonymous callers; a signed-in user
// always books as themselves.
func guestFor(p booking.Principal, guest *booking.GuestInfo) *booking.GuestInfo {
	if p.User != nil {
		return nil
	}
	return guest
}

func bookingTypeOrDefault(t models.BookingType) models.BookingType {
	if strings.TrimSpace(string(t)) == "" {
		return models.TypeCourtBooking
	}
	return models.BookingType(strings.ToUpper(string(t)))
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := apiutil.WriteJSON(w, status, payload); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write response")
	}
}
