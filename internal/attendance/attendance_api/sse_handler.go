package attendance_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-fest/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Stream pushes the event's attendance counts to an organizer as they
// change. The current counts are sent first.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	caller, ok := utils.RequireCaller(w, r)
	if !ok {
		return
	}
	eventID := chi.URLParam(r, "eventId")

	initial, err := h.Service.Counts(r.Context(), caller, eventID)
	if err != nil {
		utils.Fail(w, h.Logger, "SSE", "open attendance stream", err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.SendJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Streaming unsupported", "streaming_unsupported"))
		return
	}
	if h.Service.Stream == nil {
		utils.SendJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Live stats are disabled", "stream_disabled"))
		return
	}

	setupSSEHeaders(w)

	// Create a context that cancels when the client disconnects
	ctx := r.Context()
	updates := h.Service.Stream.Subscribe(ctx, eventID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"eventID\":%q}\n\n", eventID)
	h.send(w, initial)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Organizer %s watching attendance of event %s", caller.UserID, eventID))

	for {
		select {
		case stats, ok := <-updates:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for event: %s", eventID))
				return
			}
			h.send(w, stats)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from attendance stream for: %s", eventID))
			return
		}
	}
}

func (h *Handler) send(w http.ResponseWriter, stats interface{}) {
	data, err := json.Marshal(stats)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize attendance stats: %v", err))
		return
	}
	fmt.Fprintf(w, "event: stats\ndata: %s\n\n", data)
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
