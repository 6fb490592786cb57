package event_api

import (
	"fmt"
	"net/http"

	eventdb "ms-fest/internal/events/db"
	events "ms-fest/internal/events/service"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	"ms-fest/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *events.EventService
	Logger  *logger.Logger
}

func NewHandler(service *events.EventService, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/events", h.BrowseEvents)
	r.Post("/api/events", h.CreateEvent)
	r.Get("/api/events/{eventId}", h.GetEvent)
	r.Patch("/api/events/{eventId}", h.UpdateEvent)
	r.Post("/api/events/{eventId}/publish", h.PublishEvent)
	r.Post("/api/events/{eventId}/cancel", h.CancelEvent)
	r.Get("/api/organizer/events", h.ListOrganizerEvents)
}

// BrowseEvents handles GET /api/events?type=&eligibility=&limit=&offset=
func (h *Handler) BrowseEvents(w http.ResponseWriter, r *http.Request) {
	filter := eventdb.BrowseFilter{
		Type:        models.EventType(r.URL.Query().Get("type")),
		Eligibility: r.URL.Query().Get("eligibility"),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		utils.SendJSON(w, http.StatusBadRequest, utils.ErrorResponse("type must be NORMAL or MERCHANDISE", "validation_failed"))
		return
	}
	var err error
	if filter.Limit, err = utils.QueryInt(r, "limit", 0); err != nil {
		utils.SendError(w, err)
		return
	}
	if filter.Offset, err = utils.QueryInt(r, "offset", 0); err != nil {
		utils.SendError(w, err)
		return
	}

	list, err := h.Service.Browse(r.Context(), filter)
	if err != nil {
		utils.Fail(w, h.Logger, "EVENT_API", "browse events", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Events retrieved", list))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Service.GetEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		utils.Fail(w, h.Logger, "EVENT_API", "get event", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Event retrieved", ev))
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	var in events.CreateEventInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.SendError(w, err)
		return
	}

	ev, err := h.Service.CreateEvent(r.Context(), caller, in)
	if err != nil {
		utils.Fail(w, h.Logger, "EVENT_API", "create event", err)
		return
	}
	utils.SendJSON(w, http.StatusCreated, utils.SuccessResponse("Event created", ev))
}

// UpdateEvent handles PATCH /api/events/{eventId}. A "status" field in the
// body requests a transition.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	var patch events.Patch
	if err := utils.DecodeJSON(r, &patch); err != nil {
		utils.SendError(w, err)
		return
	}

	ev, err := h.Service.UpdateEvent(r.Context(), caller, chi.URLParam(r, "eventId"), patch)
	if err != nil {
		utils.Fail(w, h.Logger, "EVENT_API", "update event", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Event updated", ev))
}

func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	ev, err := h.Service.PublishEvent(r.Context(), caller, chi.URLParam(r, "eventId"))
	if err != nil {
		utils.Fail(w, h.Logger, "EVENT_API", "publish event", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Event published", ev))
}

func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	change, err := h.Service.CancelEvent(r.Context(), caller, chi.URLParam(r, "eventId"))
	if err != nil {
		utils.Fail(w, h.Logger, "EVENT_API", "cancel event", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse(
		fmt.Sprintf("Event cancelled, %d registrations cancelled", change.Registrations), change))
}

func (h *Handler) ListOrganizerEvents(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	list, err := h.Service.ListOrganizerEvents(r.Context(), caller)
	if err != nil {
		utils.Fail(w, h.Logger, "EVENT_API", "list organizer events", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Organizer events retrieved", list))
}
