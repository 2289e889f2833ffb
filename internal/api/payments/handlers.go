// internal/api/payments/handlers.go
package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/api/apiutil"
	"github.com/codr1/Courtside/internal/models"
	gateway "github.com/codr1/Courtside/internal/payments"
)

// Applier applies gateway outcomes to bookings.
type Applier interface {
	ConfirmPayment(ctx context.Context, bookingID int64, externalID string) (models.Booking, error)
	FailPayment(ctx context.Context, bookingID int64) (models.Booking, error)
}

var (
	handlersMu sync.RWMutex
	applier    Applier
)

var errNotInitialized = errors.New("payment handlers not initialized")

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(a Applier) {
	if a == nil {
		return
	}
	handlersMu.Lock()
	defer handlersMu.Unlock()
	applier = a
}

func loadApplier() Applier {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return applier
}

type webhookRequest struct {
	BookingID  int64  `json:"booking_id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

type webhookResponse struct {
	BookingID int64                `json:"booking_id"`
	Applied   bool                 `json:"applied"`
	Status    models.BookingStatus `json:"booking_status,omitempty"`
}

// POST /api/v1/payments/webhook
//
// The caller is a trusted upstream; payload signatures are checked before the
// request reaches this service.
func HandleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	a := loadApplier()
	if a == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}

	var req webhookRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}
	if req.BookingID <= 0 {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "booking_id", Reason: "must be a positive integer"})
		return
	}

	status := normalizeStatus(req.Status)
	logger.Info().
		Int64("booking_id", req.BookingID).
		Str("external_id", req.ExternalID).
		Str("status", string(status)).
		Msg("Payment webhook received")

	var (
		b   models.Booking
		err error
	)
	switch status {
	case gateway.StatusPaid:
		b, err = a.ConfirmPayment(r.Context(), req.BookingID, strings.TrimSpace(req.ExternalID))
	case gateway.StatusFailed:
		b, err = a.FailPayment(r.Context(), req.BookingID)
	default:
		writeJSON(w, r, http.StatusAccepted, webhookResponse{BookingID: req.BookingID})
		return
	}
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, webhookResponse{BookingID: b.ID, Applied: true, Status: b.Status})
}

func normalizeStatus(raw string) gateway.Status {
	switch s := gateway.Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case gateway.StatusPaid, gateway.StatusFailed, gateway.StatusPending:
		return s
	default:
		return gateway.MapChargeStatus(raw)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := apiutil.WriteJSON(w, status, payload); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write response")
	}
}
