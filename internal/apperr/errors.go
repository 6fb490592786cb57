package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the caller.
type Kind string

const (
	Validation    Kind = "VALIDATION"
	Authorization Kind = "AUTHORIZATION"
	Conflict      Kind = "CONFLICT"
	NotFound      Kind = "NOT_FOUND"
	Transient     Kind = "TRANSIENT"
)

// Error carries the kind, a stable machine code and the user-facing message
// naming the invariant that rejected the operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code so a sentinel still matches after WithMessage.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: Validation, Code: "validation_failed", Message: fmt.Sprintf(format, args...)}
}

// Event errors
var (
	ErrEventNotFound     = New(NotFound, "event_not_found", "event not found")
	ErrEventNotOpen      = New(Conflict, "event_not_open", "event is not open for registration")
	ErrDeadlinePassed    = New(Conflict, "deadline_passed", "registration deadline has passed")
	ErrInvalidTransition = New(Conflict, "invalid_status_transition", "invalid status transition")
	ErrEditNotAllowed    = New(Conflict, "edit_not_allowed", "field cannot be edited in the current event status")
	ErrFormLocked        = New(Conflict, "form_locked", "registration form is locked")
	ErrNotMerchandise    = New(Validation, "not_merchandise_event", "this is not a merchandise event")
	ErrItemNotFound      = New(NotFound, "item_not_found", "merchandise item not found")
)

// Registration and capacity errors
var (
	ErrRegistrationNotFound     = New(NotFound, "registration_not_found", "registration not found")
	ErrDuplicateRegistration    = New(Conflict, "duplicate_registration", "already registered for this event")
	ErrRegistrationLimitReached = New(Conflict, "registration_limit_reached", "registration limit reached")
	ErrInsufficientStock        = New(Conflict, "insufficient_stock", "insufficient stock")
	ErrMaxPerPersonExceeded     = New(Conflict, "max_per_person_exceeded", "quantity exceeds per-person maximum")
	ErrStockConflict            = New(Conflict, "stock_conflict_at_approval", "stock-conflict-at-approval")
	ErrNoItemsSelected          = New(Validation, "no_items_selected", "no valid items to purchase")
)

// Ticket and attendance errors
var (
	ErrTicketNotFound     = New(NotFound, "ticket_not_found", "invalid ticket: no registration found for this QR code")
	ErrTicketCollision    = New(Conflict, "ticket_collision", "ticket identifier collision")
	ErrAttendanceNotOpen  = New(Conflict, "attendance_not_open", "attendance can only be marked for published or ongoing events")
	ErrTicketNotCheckable = New(Conflict, "ticket_not_checkable", "registration status does not allow check-in")
)

// Identity and organizer errors
var (
	ErrNotAuthorized     = New(Authorization, "not_authorized", "not authorized")
	ErrOrganizerNotFound = New(NotFound, "organizer_not_found", "organizer profile not found")
	ErrOrganizerInactive = New(Authorization, "organizer_inactive", "organizer account is disabled")
	ErrStoreUnavailable  = New(Transient, "store_unavailable", "store unavailable, retry the request")
)

// KindOf classifies any error. Errors that carry no kind come from the store
// or the network and are reported as retryable.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound
	}
	return Transient
}

// Message returns the user-facing message for err.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "not found"
	}
	return ErrStoreUnavailable.Message
}

// Code returns the machine code for err.
func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "not_found"
	}
	return ErrStoreUnavailable.Code
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case Authorization:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

func IsNotFound(err error) bool {
	return KindOf(err) == NotFound
}

func IsConflict(err error) bool {
	return KindOf(err) == Conflict
}
