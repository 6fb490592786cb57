package analytics_api

import (
	"net/http"

	"ms-fest/internal/analytics"
	"ms-fest/internal/logger"
	"ms-fest/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, logger *logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  logger,
	}
}

// RegisterRoutes registers the analytics routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/analytics", func(r chi.Router) {
		r.Get("/events/{eventId}", h.GetEventAnalytics)
		r.Get("/events/{eventId}/orders", h.GetEventOrders)
		r.Post("/events/batch", h.GetBatchEventAnalytics)
		r.Get("/organizer", h.GetOrganizerAnalytics)
	})
}

// GetEventAnalytics handles GET /api/analytics/events/{eventId}?status=
func (h *Handler) GetEventAnalytics(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	eventID := chi.URLParam(r, "eventId")

	result, err := h.Service.GetEventAnalytics(r.Context(), caller, eventID, r.URL.Query().Get("status"))
	if err != nil {
		utils.Fail(w, h.Logger, "ANALYTICS", "Error getting event analytics", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Event analytics retrieved", result))
}

// GetEventOrders handles GET /api/analytics/events/{eventId}/orders
// with optional status, item, sort, order, limit and offset parameters.
func (h *Handler) GetEventOrders(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	eventID := chi.URLParam(r, "eventId")

	query := r.URL.Query()
	options := analytics.EventOrderOptions{
		Status:   query.Get("status"),
		ItemID:   query.Get("item"),
		SortBy:   query.Get("sort"),
		SortDesc: query.Get("order") == "desc",
	}

	var err error
	if options.Limit, err = utils.QueryInt(r, "limit", 50); err != nil {
		utils.SendError(w, err)
		return
	}
	if options.Offset, err = utils.QueryInt(r, "offset", 0); err != nil {
		utils.SendError(w, err)
		return
	}

	orders, err := h.Service.GetEventOrders(r.Context(), caller, eventID, options)
	if err != nil {
		utils.Fail(w, h.Logger, "ANALYTICS", "Error getting event orders", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Event orders retrieved", orders))
}

// GetBatchEventAnalytics handles POST /api/analytics/events/batch
// Expected body: {"event_ids": ["..."], "status": "APPROVED"}
func (h *Handler) GetBatchEventAnalytics(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}

	var request struct {
		EventIDs []string `json:"event_ids"`
		Status   string   `json:"status"`
	}
	if err := utils.DecodeJSON(r, &request); err != nil {
		utils.SendError(w, err)
		return
	}

	result, err := h.Service.GetBatchEventAnalytics(r.Context(), caller, request.EventIDs, request.Status)
	if err != nil {
		utils.Fail(w, h.Logger, "ANALYTICS", "Error getting batch event analytics", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Batch analytics retrieved", result))
}
