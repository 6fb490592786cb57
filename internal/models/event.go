package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventPublished EventStatus = "PUBLISHED"
	EventOngoing   EventStatus = "ONGOING"
	EventCompleted EventStatus = "COMPLETED"
	EventClosed    EventStatus = "CLOSED"
	EventCancelled EventStatus = "CANCELLED"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventDraft, EventPublished, EventOngoing, EventCompleted, EventClosed, EventCancelled:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions or edits.
func (s EventStatus) Terminal() bool {
	return s == EventClosed || s == EventCancelled
}

type EventType string

const (
	EventTypeNormal      EventType = "NORMAL"
	EventTypeMerchandise EventType = "MERCHANDISE"
)

func (t EventType) Valid() bool {
	return t == EventTypeNormal || t == EventTypeMerchandise
}

type CustomField struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID                   string        `bun:"id,pk" json:"id"`
	OrganizerID          string        `bun:"organizer_id,notnull" json:"organizer_id"`
	Name                 string        `bun:"name,notnull" json:"name"`
	Description          string        `bun:"description" json:"description"`
	Type                 EventType     `bun:"type,notnull" json:"type"`
	Eligibility          string        `bun:"eligibility" json:"eligibility"`
	Status               EventStatus   `bun:"status,notnull" json:"status"`
	RegistrationDeadline time.Time     `bun:"registration_deadline,notnull" json:"registration_deadline"`
	StartDate            time.Time     `bun:"start_date,notnull" json:"start_date"`
	EndDate              time.Time     `bun:"end_date,notnull" json:"end_date"`
	RegistrationLimit    int           `bun:"registration_limit,notnull" json:"registration_limit"`
	RegistrationCount    int           `bun:"registration_count,notnull" json:"registration_count"`
	RegistrationFee      float64       `bun:"registration_fee,notnull" json:"registration_fee"`
	Category             string        `bun:"category" json:"category"`
	Tags                 []string      `bun:"tags" json:"tags"`
	Venue                string        `bun:"venue" json:"venue"`
	IsOnline             bool          `bun:"is_online,notnull" json:"is_online"`
	CustomFields         []CustomField `bun:"custom_fields" json:"custom_fields"`
	IsFormLocked         bool          `bun:"is_form_locked,notnull" json:"is_form_locked"`
	PublishedAt          time.Time     `bun:"published_at,nullzero" json:"published_at,omitempty"`
	CreatedAt            time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt            time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Organizer        *Organizer         `bun:"rel:belongs-to,join:organizer_id=id" json:"organizer,omitempty"`
	MerchandiseItems []*MerchandiseItem `bun:"rel:has-many,join:id=event_id" json:"merchandise_items,omitempty"`
}

func (e *Event) ItemByID(itemID string) *MerchandiseItem {
	for _, item := range e.MerchandiseItems {
		if item.ID == itemID {
			return item
		}
	}
	return nil
}

// OrganizerUserID is the identity that owns the event, empty when the
// organizer relation was not loaded.
func (e *Event) OrganizerUserID() string {
	if e.Organizer == nil {
		return ""
	}
	return e.Organizer.UserID
}

type MerchandiseItem struct {
	bun.BaseModel `bun:"table:merchandise_items"`

	ID           string   `bun:"id,pk" json:"id"`
	EventID      string   `bun:"event_id,notnull" json:"event_id"`
	Name         string   `bun:"name,notnull" json:"name"`
	Description  string   `bun:"description" json:"description"`
	BasePrice    float64  `bun:"base_price,notnull" json:"base_price"`
	Stock        int      `bun:"stock,notnull" json:"stock"`
	MaxPerPerson int      `bun:"max_per_person,notnull" json:"max_per_person"`
	Sizes        []string `bun:"sizes" json:"sizes,omitempty"`
	Colors       []string `bun:"colors" json:"colors,omitempty"`
}
