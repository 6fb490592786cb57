package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-fest/internal/logger"
	"ms-fest/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Notifier is the engine's outbound event queue. Implementations never
// report failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, kind models.NotificationKind, aggregateID string, payload interface{})
}

// Emitter enqueues notifications in the outbox table. It is called after the
// triggering transaction commits, so a failed enqueue never rolls anything
// back; it is logged and dropped.
type Emitter struct {
	store      *Store
	logger     *logger.Logger
	maxRetries int
}

func NewEmitter(db bun.IDB, log *logger.Logger, maxRetries int) *Emitter {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Emitter{store: &Store{Bun: db}, logger: log, maxRetries: maxRetries}
}

func (e *Emitter) Notify(ctx context.Context, kind models.NotificationKind, aggregateID string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("NOTIFY", fmt.Sprintf("Failed to encode %s for %s: %v", kind, aggregateID, err))
		return
	}

	msg := &models.OutboxMessage{
		ID:          uuid.NewString(),
		Kind:        kind,
		AggregateID: aggregateID,
		Payload:     body,
		Status:      models.OutboxPending,
		MaxRetries:  e.maxRetries,
		CreatedAt:   time.Now().UTC(),
	}
	// Detached from the request so a client disconnect right after commit
	// does not drop the notification.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.Insert(ctx, msg); err != nil {
		e.logger.Error("NOTIFY", fmt.Sprintf("Failed to enqueue %s for %s: %v", kind, aggregateID, err))
		return
	}
	e.logger.Debug("NOTIFY", fmt.Sprintf("Enqueued %s for %s", kind, aggregateID))
}

// Discard drops every notification. Used by tools that mutate state without
// user-facing side effects.
type Discard struct{}

func (Discard) Notify(context.Context, models.NotificationKind, string, interface{}) {}

// RegistrationNoticeFor builds the payload shared by all registration kinds.
// ev may be nil when reg.Event is loaded.
func RegistrationNoticeFor(reg *models.Registration, ev *models.Event) models.RegistrationNotice {
	if ev == nil {
		ev = reg.Event
	}
	n := models.RegistrationNotice{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		ParticipantID:  reg.ParticipantID,
		TicketID:       reg.TicketID,
		QRPayload:      reg.QRPayload,
		ItemName:       reg.Merchandise.ItemName,
		Quantity:       reg.Merchandise.Quantity,
		Amount:         reg.AmountPaid,
		Note:           reg.AdminNotes,
	}
	if ev != nil {
		n.EventName = ev.Name
		n.StartDate = ev.StartDate
		n.Venue = ev.Venue
	}
	if reg.Participant != nil {
		n.ParticipantName = reg.Participant.FullName()
		n.ParticipantEmail = reg.Participant.Email
	}
	return n
}
