// internal/api/blocks/handlers.go
package blocks

import (
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Courtside/internal/api/apiutil"
	"github.com/codr1/Courtside/internal/booking"
)

var (
	handlersMu sync.RWMutex
	service    *booking.Service
)

var errNotInitialized = errors.New("block handlers not initialized")

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(svc *booking.Service) {
	if svc == nil {
		return
	}
	handlersMu.Lock()
	defer handlersMu.Unlock()
	service = svc
}

func loadService() *booking.Service {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return service
}

// POST /api/v1/orgs/{slug}/admin/blocks
func HandleCreate(w http.ResponseWriter, r *http.Request) {
	svc := loadService()
	if svc == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}
	org, err := apiutil.Organization(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req booking.BlockRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	block, err := svc.CreateBlock(r.Context(), org, apiutil.Principal(r, false), req)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusCreated, block); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write response")
	}
}

// DELETE /api/v1/orgs/{slug}/admin/blocks/{id}
func HandleDelete(w http.ResponseWriter, r *http.Request) {
	svc := loadService()
	if svc == nil {
		apiutil.WriteError(w, r, errNotInitialized)
		return
	}
	org, err := apiutil.Organization(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	blockID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	if err := svc.DeleteBlock(r.Context(), org, apiutil.Principal(r, false), blockID); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
