package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RegistrationType string

const (
	RegistrationNormal      RegistrationType = "NORMAL"
	RegistrationMerchandise RegistrationType = "MERCHANDISE"
)

type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "REGISTERED"
	RegistrationPending    RegistrationStatus = "PENDING"
	RegistrationApproved   RegistrationStatus = "APPROVED"
	RegistrationRejected   RegistrationStatus = "REJECTED"
	RegistrationCancelled  RegistrationStatus = "CANCELLED"
	RegistrationCompleted  RegistrationStatus = "COMPLETED"
)

func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationRegistered, RegistrationPending, RegistrationApproved,
		RegistrationRejected, RegistrationCancelled, RegistrationCompleted:
		return true
	}
	return false
}

// Status groups shared by the state machines, the scheduler and the exports.
var (
	// ActiveStatuses block a second NORMAL registration for the same participant.
	ActiveStatuses = []RegistrationStatus{RegistrationRegistered, RegistrationPending, RegistrationApproved, RegistrationCompleted}
	// CompletableStatuses flip to COMPLETED when the event completes or closes.
	CompletableStatuses = []RegistrationStatus{RegistrationRegistered, RegistrationApproved}
	// CancellableStatuses flip to CANCELLED when the event is cancelled.
	CancellableStatuses = []RegistrationStatus{RegistrationRegistered, RegistrationApproved, RegistrationPending}
	// EligibleStatuses count towards attendance statistics.
	EligibleStatuses = []RegistrationStatus{RegistrationRegistered, RegistrationApproved, RegistrationCompleted}
	// CheckInStatuses may be scanned at the gate.
	CheckInStatuses = []RegistrationStatus{RegistrationRegistered, RegistrationApproved}
)

func StatusIn(s RegistrationStatus, set []RegistrationStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

type MerchandiseSelection struct {
	ItemID    string  `bun:"item_id,nullzero" json:"item_id,omitempty"`
	ItemName  string  `bun:"item_name,nullzero" json:"item_name,omitempty"`
	Size      string  `bun:"size,nullzero" json:"size,omitempty"`
	Color     string  `bun:"color,nullzero" json:"color,omitempty"`
	UnitPrice float64 `bun:"unit_price" json:"unit_price,omitempty"`
	Quantity  int     `bun:"quantity" json:"quantity,omitempty"`
}

type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID                      string                 `bun:"id,pk" json:"id"`
	EventID                 string                 `bun:"event_id,notnull" json:"event_id"`
	ParticipantID           string                 `bun:"participant_id,notnull" json:"participant_id"`
	Type                    RegistrationType       `bun:"registration_type,notnull" json:"registration_type"`
	Status                  RegistrationStatus     `bun:"status,notnull" json:"status"`
	FormResponses           map[string]interface{} `bun:"form_responses" json:"form_responses,omitempty"`
	Merchandise             MerchandiseSelection   `bun:"embed:merch_" json:"merchandise_selection"`
	TicketID                string                 `bun:"ticket_id,unique,nullzero" json:"ticket_id,omitempty"`
	QRPayload               string                 `bun:"qr_payload,nullzero" json:"qr_payload,omitempty"`
	TicketIssuedAt          time.Time              `bun:"ticket_issued_at,nullzero" json:"ticket_issued_at,omitempty"`
	AmountPaid              float64                `bun:"amount_paid,notnull" json:"amount_paid"`
	PaymentProofRef         string                 `bun:"payment_proof_ref,nullzero" json:"payment_proof_ref,omitempty"`
	PaymentProofSubmittedAt time.Time              `bun:"payment_proof_submitted_at,nullzero" json:"payment_proof_submitted_at,omitempty"`
	AdminNotes              string                 `bun:"admin_notes,nullzero" json:"admin_notes,omitempty"`
	AttendanceMarked        bool                   `bun:"attendance_marked,notnull" json:"attendance_marked"`
	AttendedAt              time.Time              `bun:"attended_at,nullzero" json:"attended_at,omitempty"`
	CreatedAt               time.Time              `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt               time.Time              `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Event       *Event             `bun:"rel:belongs-to,join:event_id=id" json:"event,omitempty"`
	Participant *User              `bun:"rel:belongs-to,join:participant_id=id" json:"participant,omitempty"`
	AuditLog    []*AttendanceAudit `bun:"rel:has-many,join:id=registration_id" json:"attendance_audit_log,omitempty"`
}

// HoldsCapacity reports whether the registration currently consumes a seat
// (NORMAL) or stock units (MERCHANDISE).
func (r *Registration) HoldsCapacity() bool {
	if r.Type == RegistrationMerchandise {
		return r.Status == RegistrationApproved
	}
	return r.Status == RegistrationRegistered || r.Status == RegistrationApproved
}

type AuditAction string

const (
	AuditMarked         AuditAction = "MARKED"
	AuditUnmarked       AuditAction = "UNMARKED"
	AuditManualOverride AuditAction = "MANUAL_OVERRIDE"
)

// AttendanceAudit rows are append-only.
type AttendanceAudit struct {
	bun.BaseModel `bun:"table:attendance_audit"`

	ID             string      `bun:"id,pk" json:"id"`
	RegistrationID string      `bun:"registration_id,notnull" json:"registration_id"`
	Action         AuditAction `bun:"action,notnull" json:"action"`
	Timestamp      time.Time   `bun:"timestamp,notnull" json:"timestamp"`
	Actor          string      `bun:"actor,notnull" json:"actor"`
	Reason         string      `bun:"reason" json:"reason,omitempty"`
}

// AttendanceStats is the live check-in tally of an event.
type AttendanceStats struct {
	EventID    string    `json:"event_id"`
	Total      int       `json:"total"`
	Scanned    int       `json:"scanned"`
	NotScanned int       `json:"not_scanned"`
	UpdatedAt  time.Time `json:"updated_at"`
}
