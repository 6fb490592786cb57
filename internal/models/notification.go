package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

type NotificationKind string

const (
	NotifyTicketIssued          NotificationKind = "TICKET_ISSUED"
	NotifyPaymentApproved       NotificationKind = "PAYMENT_APPROVED"
	NotifyPaymentRejected       NotificationKind = "PAYMENT_REJECTED"
	NotifyRegistrationCancelled NotificationKind = "REGISTRATION_CANCELLED"
	NotifyEventPublished        NotificationKind = "EVENT_PUBLISHED"
)

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "PENDING"
	OutboxPublished OutboxStatus = "PUBLISHED"
	OutboxFailed    OutboxStatus = "FAILED"
)

type OutboxMessage struct {
	bun.BaseModel `bun:"table:notification_outbox"`

	ID          string           `bun:"id,pk" json:"id"`
	Kind        NotificationKind `bun:"kind,notnull" json:"kind"`
	AggregateID string           `bun:"aggregate_id,notnull" json:"aggregate_id"`
	Payload     json.RawMessage  `bun:"payload,type:jsonb" json:"payload"`
	Status      OutboxStatus     `bun:"status,notnull" json:"status"`
	RetryCount  int              `bun:"retry_count,notnull" json:"retry_count"`
	MaxRetries  int              `bun:"max_retries,notnull" json:"max_retries"`
	LastError   string           `bun:"last_error,nullzero" json:"last_error,omitempty"`
	CreatedAt   time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	PublishedAt time.Time        `bun:"published_at,nullzero" json:"published_at,omitempty"`
}

func (m *OutboxMessage) CanRetry() bool {
	return m.Status == OutboxFailed && m.RetryCount < m.MaxRetries
}

// Envelope is the wire format published for every notification.
type Envelope struct {
	ID          string           `json:"id"`
	Kind        NotificationKind `json:"kind"`
	AggregateID string           `json:"aggregate_id"`
	Payload     json.RawMessage  `json:"payload"`
	CreatedAt   time.Time        `json:"created_at"`
}

// RegistrationNotice is the payload of every registration-scoped notification.
type RegistrationNotice struct {
	RegistrationID   string    `json:"registration_id"`
	EventID          string    `json:"event_id"`
	EventName        string    `json:"event_name"`
	StartDate        time.Time `json:"start_date"`
	Venue            string    `json:"venue,omitempty"`
	ParticipantID    string    `json:"participant_id"`
	ParticipantName  string    `json:"participant_name,omitempty"`
	ParticipantEmail string    `json:"participant_email,omitempty"`
	TicketID         string    `json:"ticket_id,omitempty"`
	QRPayload        string    `json:"qr_payload,omitempty"`
	ItemName         string    `json:"item_name,omitempty"`
	Quantity         int       `json:"quantity,omitempty"`
	Amount           float64   `json:"amount,omitempty"`
	Note             string    `json:"note,omitempty"`
}

type EventPublishedNotice struct {
	EventID              string    `json:"event_id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	Type                 EventType `json:"type"`
	Eligibility          string    `json:"eligibility"`
	RegistrationFee      float64   `json:"registration_fee"`
	Venue                string    `json:"venue"`
	IsOnline             bool      `json:"is_online"`
	StartDate            time.Time `json:"start_date"`
	RegistrationDeadline time.Time `json:"registration_deadline"`
	OrganizerName        string    `json:"organizer_name"`
	WebhookURL           string    `json:"webhook_url,omitempty"`
}
