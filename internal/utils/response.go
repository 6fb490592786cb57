package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-fest/internal/apperr"
	"ms-fest/internal/auth"
	"ms-fest/internal/logger"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

// SendJSON writes data as the response body with the given status.
func SendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encoding failure cannot be reported.
	_ = json.NewEncoder(w).Encode(data)
}

// SendError maps err to its HTTP status and writes the error envelope. The
// message names the rule that rejected the request; store and network
// failures are reported generically.
func SendError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(apperr.KindOf(err))
	SendJSON(w, status, ErrorResponse(apperr.Message(err), apperr.Code(err)))
}

// RequireCaller returns the authenticated identity, answering 401 when the
// request carries none.
func RequireCaller(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		SendJSON(w, http.StatusUnauthorized, ErrorResponse("Unauthorized access", "unauthorized"))
	}
	return id, ok
}

// DecodeJSON reads the request body into dst, reporting malformed input as a
// VALIDATION error.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validationf("invalid request body: %v", err)
	}
	return nil
}

// Fail logs err under category and writes the error envelope. Rejections
// are warnings; store and network failures are errors.
func Fail(w http.ResponseWriter, log *logger.Logger, category, action string, err error) {
	msg := fmt.Sprintf("%s: %v", action, err)
	if apperr.KindOf(err) == apperr.Transient {
		log.Error(category, msg)
	} else {
		log.Warn(category, msg)
	}
	SendError(w, err)
}
