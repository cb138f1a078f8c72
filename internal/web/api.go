package web

import (
	"errors"
	"net/http"
	"strconv"

	"xpstore/internal/middleware"
	"xpstore/internal/storefront"
)

const defaultAttemptLimit = 50

type openRequest struct {
	OfferingID int64 `json:"offering_id"`
}

// submitResult is how a confirmation ended, even if the flow was cancelled
// before the webhook answered.
type submitResult struct {
	Phase   storefront.Phase    `json:"phase"`
	Message *storefront.Message `json:"message,omitempty"`
}

type confirmResponse struct {
	Result submitResult        `json:"result"`
	State  storefront.Snapshot `json:"state"`
}

func (h *Handler) OfferingsAPI(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, h.view.Offerings())
}

func (h *Handler) StateAPI(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, h.view.Snapshot())
}

func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body", err.Error())
		return
	}

	if err := h.view.Open(req.OfferingID); err != nil {
		writeFlowError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, h.view.Snapshot())
}

func (h *Handler) ConfirmAPI(w http.ResponseWriter, r *http.Request) {
	state, err := h.view.Submit(detached(r))
	if err != nil {
		writeFlowError(w, r, err)
		return
	}

	res := submitResult{Phase: state.Phase()}
	if msg, ok := storefront.Result(state); ok {
		res.Message = &msg
	}
	middleware.WriteAPISuccess(w, r, confirmResponse{Result: res, State: h.view.Snapshot()})
}

func (h *Handler) CancelAPI(w http.ResponseWriter, r *http.Request) {
	h.view.Cancel()
	middleware.WriteAPISuccess(w, r, h.view.Snapshot())
}

func (h *Handler) AttemptsAPI(w http.ResponseWriter, r *http.Request) {
	if h.attempts == nil {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "journal_disabled", "Purchase journal is not enabled", "")
		return
	}

	limit := defaultAttemptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 500", "")
			return
		}
		limit = n
	}

	attempts, err := h.attempts.Recent(r.Context(), limit)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "journal_error", "Failed to read purchase journal", "")
		return
	}
	middleware.WriteAPISuccess(w, r, attempts)
}

func writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storefront.ErrUnknownOffering):
		middleware.WriteAPIError(w, r, http.StatusNotFound, "unknown_offering", "Offering not found", err.Error())
	case errors.Is(err, storefront.ErrInFlight):
		middleware.WriteAPIError(w, r, http.StatusConflict, "in_flight", "A purchase is already being processed", "")
	case errors.Is(err, storefront.ErrNoSelection):
		middleware.WriteAPIError(w, r, http.StatusConflict, "no_selection", "No offering selected", "")
	default:
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "An internal error occurred", "")
	}
}
