package organizer_api

import (
	"net/http"

	"ms-fest/internal/logger"
	organizers "ms-fest/internal/organizers/service"
	"ms-fest/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *organizers.AdminService
	Logger  *logger.Logger
}

func NewHandler(service *organizers.AdminService, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/admin/organizers", func(r chi.Router) {
		r.Patch("/{organizerId}", h.SetActive)
		r.Delete("/{organizerId}", h.Purge)
	})
}

// SetActive handles PATCH /api/admin/organizers/{organizerId}
// Expected body: {"is_active": false}
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	var body struct {
		IsActive *bool `json:"is_active"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.SendError(w, err)
		return
	}
	if body.IsActive == nil {
		utils.SendJSON(w, http.StatusBadRequest, utils.ErrorResponse("is_active is required", "validation_failed"))
		return
	}

	org, err := h.Service.SetOrganizerActive(r.Context(), caller, chi.URLParam(r, "organizerId"), *body.IsActive)
	if err != nil {
		utils.Fail(w, h.Logger, "ADMIN", "set organizer active", err)
		return
	}
	msg := "Organizer disabled"
	if org.IsActive {
		msg = "Organizer enabled"
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse(msg, org))
}

func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	res, err := h.Service.PurgeOrganizer(r.Context(), caller, chi.URLParam(r, "organizerId"))
	if err != nil {
		utils.Fail(w, h.Logger, "ADMIN", "purge organizer", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Organizer and all dependent records deleted", res))
}
