package registration_api

import (
	"bytes"
	"net/http"
	"strconv"

	"ms-fest/internal/export"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	regdb "ms-fest/internal/registrations/db"
	registrations "ms-fest/internal/registrations/service"
	"ms-fest/internal/utils"

	"github.com/go-chi/chi/v5"
)

const category = "REGISTRATION_API"

type Handler struct {
	Service *registrations.RegistrationService
	Logger  *logger.Logger
}

func NewHandler(service *registrations.RegistrationService, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/registrations", h.Register)
	r.Post("/api/registrations/merchandise", h.PurchaseMerchandise)
	r.Get("/api/registrations/me", h.ListMine)
	r.Get("/api/registrations/{registrationId}", h.GetRegistration)
	r.Get("/api/registrations/{registrationId}/ticket.png", h.TicketImage)
	r.Post("/api/registrations/{registrationId}/payment-proof", h.UploadPaymentProof)
	r.Post("/api/registrations/{registrationId}/approve", h.Approve)
	r.Post("/api/registrations/{registrationId}/reject", h.Reject)
	r.Post("/api/registrations/{registrationId}/cancel", h.Cancel)
	r.Get("/api/events/{eventId}/registrations", h.ListForEvent)
	r.Get("/api/events/{eventId}/registrations.csv", h.ExportRegistrations)
}

// reviewRequest is the optional body of approve and reject.
type reviewRequest struct {
	Note string `json:"note"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	var in registrations.RegisterInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.SendError(w, err)
		return
	}

	reg, err := h.Service.Register(r.Context(), caller, in)
	if err != nil {
		utils.Fail(w, h.Logger, category, "register", err)
		return
	}
	utils.SendJSON(w, http.StatusCreated, utils.SuccessResponse("Registration successful", reg))
}

func (h *Handler) PurchaseMerchandise(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	var in registrations.PurchaseInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.SendError(w, err)
		return
	}

	order, err := h.Service.PurchaseMerchandise(r.Context(), caller, in)
	if err != nil {
		utils.Fail(w, h.Logger, category, "purchase merchandise", err)
		return
	}
	utils.SendJSON(w, http.StatusCreated, utils.SuccessResponse("Order placed, upload payment proof for approval", order))
}

// ListMine handles GET /api/registrations/me?status=&type=
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	filter := regdb.ListFilter{
		Status: models.RegistrationStatus(r.URL.Query().Get("status")),
		Type:   models.RegistrationType(r.URL.Query().Get("type")),
	}

	list, err := h.Service.ListMine(r.Context(), caller, filter)
	if err != nil {
		utils.Fail(w, h.Logger, category, "list my registrations", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Registrations retrieved", list))
}

func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	reg, err := h.Service.Get(r.Context(), caller, chi.URLParam(r, "registrationId"))
	if err != nil {
		utils.Fail(w, h.Logger, category, "get registration", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Registration retrieved", reg))
}

func (h *Handler) TicketImage(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	png, err := h.Service.TicketImage(r.Context(), caller, chi.URLParam(r, "registrationId"))
	if err != nil {
		utils.Fail(w, h.Logger, category, "render ticket", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// UploadPaymentProof handles POST /api/registrations/{registrationId}/payment-proof
// Expected body: {"payment_proof_ref": "uploads/proofs/abc.jpg"}
func (h *Handler) UploadPaymentProof(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	var body struct {
		PaymentProofRef string `json:"payment_proof_ref"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.SendError(w, err)
		return
	}

	reg, err := h.Service.UploadPaymentProof(r.Context(), caller, chi.URLParam(r, "registrationId"), body.PaymentProofRef)
	if err != nil {
		utils.Fail(w, h.Logger, category, "upload payment proof", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Payment proof uploaded", reg))
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	body, ok := h.review(w, r)
	if !ok {
		return
	}
	reg, err := h.Service.Approve(r.Context(), caller, chi.URLParam(r, "registrationId"), body.Note)
	if err != nil {
		utils.Fail(w, h.Logger, category, "approve", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Payment approved", reg))
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	body, ok := h.review(w, r)
	if !ok {
		return
	}
	reg, err := h.Service.Reject(r.Context(), caller, chi.URLParam(r, "registrationId"), body.Note)
	if err != nil {
		utils.Fail(w, h.Logger, category, "reject", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Payment rejected", reg))
}

// review decodes the optional note; an empty body is allowed.
func (h *Handler) review(w http.ResponseWriter, r *http.Request) (reviewRequest, bool) {
	var body reviewRequest
	if r.ContentLength == 0 {
		return body, true
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.SendError(w, err)
		return body, false
	}
	return body, true
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	reg, err := h.Service.Cancel(r.Context(), caller, chi.URLParam(r, "registrationId"))
	if err != nil {
		utils.Fail(w, h.Logger, category, "cancel", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Registration cancelled", reg))
}

func (h *Handler) ListForEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	_, list, err := h.Service.ListForEvent(r.Context(), caller, chi.URLParam(r, "eventId"))
	if err != nil {
		utils.Fail(w, h.Logger, category, "list event registrations", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, utils.SuccessResponse("Event registrations retrieved", list))
}

func (h *Handler) ExportRegistrations(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	ev, list, err := h.Service.ListForEvent(r.Context(), caller, chi.URLParam(r, "eventId"))
	if err != nil {
		utils.Fail(w, h.Logger, category, "export registrations", err)
		return
	}

	var buf bytes.Buffer
	if err := export.Registrations(&buf, list); err != nil {
		utils.Fail(w, h.Logger, category, "export registrations", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", utils.AttachmentName("registrations", ev.ID, "csv"))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
