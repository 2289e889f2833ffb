// internal/api/recurring/handlers.go
package recurring

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/api/apiutil"
	"github.com/codr1/Courtside/internal/models"
	"github.com/codr1/Courtside/internal/recurring"
)

// Series expansion runs in a single transaction.
const createTimeout = 30 * time.Second

var (
	handlersMu sync.RWMutex
	engine     *recurring.Engine
)

var errNotInitialized = errors.New("recurring handlers not initialized")

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(e *recurring.Engine) {
	if e == nil {
		return
	}
	handlersMu.Lock()
	defer handlersMu.Unlock()
	engine = e
}

func loadEngine() *recurring.Engine {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return engine
}

type listResponse struct {
	Recurring []models.RecurringBooking `json:"recurring"`
}

// POST /api/v1/orgs/{slug}/admin/recurring
func HandleCreate(w http.ResponseWriter, r *http.Request) {
	e, org, ok := prepare(w, r)
	if !ok {
		return
	}

	var req recurring.Request
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), createTimeout)
	defer cancel()

	res, err := e.Create(ctx, org, apiutil.Principal(r, false), req)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, res)
}

// GET /api/v1/orgs/{slug}/admin/recurring
func HandleList(w http.ResponseWriter, r *http.Request) {
	e, org, ok := prepare(w, r)
	if !ok {
		return
	}

	list, err := e.List(r.Context(), org, apiutil.Principal(r, false))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if list == nil {
		list = []models.RecurringBooking{}
	}
	writeJSON(w, r, http.StatusOK, listResponse{Recurring: list})
}

// POST /api/v1/orgs/{slug}/admin/recurring/{id}/cancel
func HandleCancel(w http.ResponseWriter, r *http.Request) {
	e, org, ok := prepare(w, r)
	if !ok {
		return
	}
	recurringID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	res, err := e.Cancel(r.Context(), org, apiutil.Principal(r, false), recurringID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func prepare(w http.ResponseWriter, r *http.Request) (*recurring.Engine, models.Organization, bool) {
	e := loadEngine()
	if e == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return nil, models.Organization{}, false
	}
	org, err := apiutil.Organization(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return nil, models.Organization{}, false
	}
	return e, org, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := apiutil.WriteJSON(w, status, payload); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write response")
	}
}
