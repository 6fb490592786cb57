package attendance_api

import (
	"bytes"
	"net/http"

	"ms-fest/internal/attendance"
	"ms-fest/internal/export"
	"ms-fest/internal/logger"
	"ms-fest/internal/utils"

	"github.com/go-chi/chi/v5"
)

const category = "ATTENDANCE_API"

type Handler struct {
	Service *attendance.Service
	Logger  *logger.Logger
}

func NewHandler(service *attendance.Service, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/attendance", func(r chi.Router) {
		r.Post("/scan", h.Scan)
		r.Post("/registrations/{registrationId}/override", h.ManualOverride)
		r.Get("/events/{eventId}/stats", h.Stats)
		r.Get("/events/{eventId}/export.csv", h.Export)
		r.Get("/events/{eventId}/stream", h.Stream)
	})
}

// Scan handles ticket check-in at the gate
// Expected POST request body: {"qr_payload": "<scanned QR text or ticket id>"}
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	var body struct {
		QRPayload string `json:"qr_payload"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.SendError(w, err)
		return
	}
	if body.QRPayload == "" {
		utils.SendJSON(w, http.StatusBadRequest, utils.ErrorResponse("qr_payload is required", "validation_failed"))
		return
	}

	res, err := h.Service.Scan(r.Context(), caller, body.QRPayload)
	if err != nil {
		utils.Fail(w, h.Logger, category, "scan", err)
		return
	}
	msg := "Attendance marked"
	if res.Outcome == attendance.OutcomeDuplicate {
		msg = "Ticket already scanned"
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse(msg, res))
}

// ManualOverride handles POST /api/attendance/registrations/{registrationId}/override
// Expected body: {"attended": true, "reason": "QR unreadable"}
func (h *Handler) ManualOverride(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	var body struct {
		Attended *bool  `json:"attended"`
		Reason   string `json:"reason"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.SendError(w, err)
		return
	}
	if body.Attended == nil {
		utils.SendJSON(w, http.StatusBadRequest, utils.ErrorResponse("attended is required", "validation_failed"))
		return
	}

	res, err := h.Service.ManualOverride(r.Context(), caller, chi.URLParam(r, "registrationId"), *body.Attended, body.Reason)
	if err != nil {
		utils.Fail(w, h.Logger, category, "manual override", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Attendance updated", res))
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	report, err := h.Service.Stats(r.Context(), caller, chi.URLParam(r, "eventId"))
	if err != nil {
		utils.Fail(w, h.Logger, category, "stats", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Attendance statistics retrieved", report))
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	ev, list, err := h.Service.EligibleForExport(r.Context(), caller, chi.URLParam(r, "eventId"))
	if err != nil {
		utils.Fail(w, h.Logger, category, "export attendance", err)
		return
	}

	var buf bytes.Buffer
	if err := export.Attendance(&buf, list); err != nil {
		utils.Fail(w, h.Logger, category, "export attendance", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", utils.AttachmentName("attendance", ev.ID, "csv"))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
