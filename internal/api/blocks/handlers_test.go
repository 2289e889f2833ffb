package blocks

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/codr1/Courtside/internal/api/apitest"
	"github.com/codr1/Courtside/internal/booking"
	"github.com/codr1/Courtside/internal/models"
	"github.com/codr1/Courtside/internal/testutil"
)

func tuesday(hour int) time.Time {
	return time.Date(2025, time.June, 3, hour, 0, 0, 0, time.UTC)
}

func setupBlocksTest(t *testing.T) *apitest.Harness {
	t.Helper()

	h := apitest.New(t, testutil.OrgOptions{})
	InitHandlers(h.Service)

	h.Handle("POST /api/v1/orgs/{slug}/admin/blocks", HandleCreate, true)
	h.Handle("DELETE /api/v1/orgs/{slug}/admin/blocks/{id}", HandleDelete, true)
	return h
}

func blockBody(courtID int64, start, end time.Time, reason string) map[string]any {
	return map[string]any{
		"courtId":   courtID,
		"startTime": start,
		"endTime":   end,
		"reason":    reason,
	}
}

func TestBlockHandlersCreateAndDelete(t *testing.T) {
	h := setupBlocksTest(t)

	recorder := h.Do(apitest.Request{
		Method: http.MethodPost,
		Path:   h.OrgPath("/admin/blocks"),
		Body:   blockBody(h.CourtID, tuesday(8), tuesday(12), "maintenance"),
		UserID: h.AdminID,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", recorder.Code, recorder.Body.String())
	}
	var block models.CourtBlock
	apitest.Decode(t, recorder, &block)
	if block.Reason != models.BlockReason("MAINTENANCE") || block.CreatedBy == nil || *block.CreatedBy != h.AdminID {
		t.Fatalf("unexpected block: %#v", block)
	}

	deletePath := h.OrgPath(fmt.Sprintf("/admin/blocks/%d", block.ID))
	deleted := h.Do(apitest.Request{Method: http.MethodDelete, Path: deletePath, UserID: h.AdminID})
	if deleted.Code != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", deleted.Code, deleted.Body.String())
	}

	again := h.Do(apitest.Request{Method: http.MethodDelete, Path: deletePath, UserID: h.AdminID})
	apitest.ExpectError(t, again, http.StatusNotFound, string(booking.CodeNotFound))
}

func TestBlockHandlersRejections(t *testing.T) {
	h := setupBlocksTest(t)
	testutil.SeedConfirmedBooking(t, h.DB, h.OrgID, h.CourtID, h.MemberID, tuesday(10), tuesday(11))

	tests := []struct {
		name       string
		userID     int64
		body       any
		wantStatus int
		wantCode   booking.Code
	}{
		{"member", h.MemberID, blockBody(h.CourtID, tuesday(14), tuesday(15), "OTHER"), http.StatusForbidden, booking.CodeForbidden},
		{"anonymous", 0, blockBody(h.CourtID, tuesday(14), tuesday(15), "OTHER"), http.StatusUnauthorized, booking.CodeNotAuthenticated},
		{"overlaps booking", h.AdminID, blockBody(h.CourtID, tuesday(9), tuesday(11), "TOURNAMENT"), http.StatusConflict, booking.CodeSlotConflict},
		{"unknown reason", h.AdminID, blockBody(h.CourtID, tuesday(14), tuesday(15), "PARTY"), http.StatusBadRequest, booking.CodeValidation},
		{"end before start", h.AdminID, blockBody(h.CourtID, tuesday(15), tuesday(14), "OTHER"), http.StatusBadRequest, booking.CodeValidation},
		{"unknown court", h.AdminID, blockBody(h.CourtID+100, tuesday(14), tuesday(15), "OTHER"), http.StatusNotFound, booking.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := h.Do(apitest.Request{
				Method: http.MethodPost,
				Path:   h.OrgPath("/admin/blocks"),
				Body:   tt.body,
				UserID: tt.userID,
			})
			apitest.ExpectError(t, recorder, tt.wantStatus, string(tt.wantCode))
		})
	}

	if n := testutil.CountRows(t, h.DB, "court_blocks"); n != 0 {
		t.Fatalf("expected no blocks, got %d", n)
	}
}
