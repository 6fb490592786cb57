package analytics_api

import (
	"net/http"

	"ms-fest/internal/utils"
)

// GetOrganizerAnalytics handles analytics across the caller's own events
func (h *Handler) GetOrganizerAnalytics(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}

	result, err := h.Service.GetOrganizerAnalytics(r.Context(), caller, r.URL.Query().Get("status"))
	if err != nil {
		utils.Fail(w, h.Logger, "ANALYTICS", "Error getting organizer analytics", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Organizer analytics retrieved", result))
}
