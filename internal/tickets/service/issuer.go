package tickets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-fest/internal/apperr"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	regdb "ms-fest/internal/registrations/db"
	qr "ms-fest/internal/tickets/qr_genrator"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Ticket struct {
	ID       string    `json:"ticket_id"`
	Payload  string    `json:"qr_payload"`
	IssuedAt time.Time `json:"issued_at"`
}

// Issuer assigns tickets to confirmed registrations.
type Issuer struct {
	QR     *qr.QRGenerator
	Logger *logger.Logger

	// NewTicketID and Now are replaceable in tests.
	NewTicketID func() string
	Now         func() time.Time
}

func NewIssuer(gen *qr.QRGenerator, log *logger.Logger) *Issuer {
	return &Issuer{
		QR:          gen,
		Logger:      log,
		NewTicketID: NewTicketID,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

func NewTicketID() string {
	return "TKT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

// Issue gives reg a ticket inside the caller's transaction. A registration
// that already holds a ticket gets the same ticket back. A generated id that
// collides with another registration's ticket fails with ErrTicketCollision.
func (i *Issuer) Issue(ctx context.Context, db bun.IDB, reg *models.Registration) (Ticket, error) {
	if reg.TicketID != "" {
		return ticketOf(reg), nil
	}

	ticketID := i.NewTicketID()
	payload, err := i.QR.EncodePayload(ticketID)
	if err != nil {
		return Ticket{}, fmt.Errorf("encode ticket payload: %w", err)
	}
	issuedAt := i.Now()

	store := &regdb.DB{Bun: db}
	assigned, err := store.AssignTicket(ctx, reg.ID, ticketID, payload, issuedAt)
	if err != nil {
		return Ticket{}, err
	}
	if !assigned {
		// Someone else ticketed it first; hand back theirs.
		current, err := store.Get(ctx, reg.ID)
		if err != nil {
			return Ticket{}, err
		}
		if current.TicketID == "" {
			return Ticket{}, apperr.ErrRegistrationNotFound
		}
		reg.TicketID, reg.QRPayload, reg.TicketIssuedAt = current.TicketID, current.QRPayload, current.TicketIssuedAt
		return ticketOf(reg), nil
	}

	reg.TicketID, reg.QRPayload, reg.TicketIssuedAt = ticketID, payload, issuedAt
	i.Logger.LogAttendance("ISSUE", ticketID, fmt.Sprintf("ticket issued for registration %s", reg.ID))
	return ticketOf(reg), nil
}

// Resolve maps a scanned payload to its registration. Raw ticket ids typed
// in by hand are accepted too.
func (i *Issuer) Resolve(ctx context.Context, db bun.IDB, payload string) (*models.Registration, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, apperr.ErrTicketNotFound
	}
	ticketID, err := i.QR.DecodePayload(payload)
	if err != nil {
		ticketID = payload
	}
	return (&regdb.DB{Bun: db}).GetByTicketID(ctx, ticketID)
}

// Image renders the registration's QR payload as PNG.
func (i *Issuer) Image(reg *models.Registration) ([]byte, error) {
	if reg.QRPayload == "" {
		return nil, apperr.ErrTicketNotFound.WithMessage("no ticket issued for this registration")
	}
	return i.QR.RenderPNG(reg.QRPayload)
}

func ticketOf(reg *models.Registration) Ticket {
	return Ticket{ID: reg.TicketID, Payload: reg.QRPayload, IssuedAt: reg.TicketIssuedAt}
}
