package registrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-fest/internal/apperr"
	"ms-fest/internal/attendance"
	"ms-fest/internal/auth"
	"ms-fest/internal/capacity"
	eventdb "ms-fest/internal/events/db"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	"ms-fest/internal/notify"
	orgdb "ms-fest/internal/organizers/db"
	regdb "ms-fest/internal/registrations/db"
	tickets "ms-fest/internal/tickets/service"
	"ms-fest/internal/validation"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultRejectNote = "Payment rejected by organizer"

type RegisterInput struct {
	EventID       string                 `json:"event_id" validate:"required"`
	FormResponses map[string]interface{} `json:"form_responses"`
}

type OrderLine struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity"`
	Size     string `json:"size"`
	Color    string `json:"color"`
}

type PurchaseInput struct {
	EventID string      `json:"event_id" validate:"required"`
	Items   []OrderLine `json:"items" validate:"dive"`
}

// Order is the result of a merchandise purchase: one PENDING registration per
// item type.
type Order struct {
	Registrations []*models.Registration `json:"registrations"`
	TotalAmount   float64                `json:"total_amount"`
}

type RegistrationService struct {
	DB            *bun.DB
	Registrations *regdb.DB
	Events        *eventdb.DB
	Users         *orgdb.DB
	Ledger        *capacity.Ledger
	Issuer        *tickets.Issuer
	Notifier      notify.Notifier
	Stats         attendance.StatsRefresher
	Logger        *logger.Logger
	Now           func() time.Time
}

func NewRegistrationService(db *bun.DB, issuer *tickets.Issuer, notifier notify.Notifier, log *logger.Logger) *RegistrationService {
	return &RegistrationService{
		DB:            db,
		Registrations: &regdb.DB{Bun: db},
		Events:        &eventdb.DB{Bun: db},
		Users:         &orgdb.DB{Bun: db},
		Ledger:        capacity.NewLedger(),
		Issuer:        issuer,
		Notifier:      notifier,
		Stats:         attendance.NoCache{},
		Logger:        log,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// Register signs the caller up for a NORMAL event. The seat reservation, the
// registration row and the ticket commit together.
func (s *RegistrationService) Register(ctx context.Context, caller auth.Identity, in RegisterInput) (*models.Registration, error) {
	if err := auth.Authorize(auth.OpRegister, caller, auth.Resource{}); err != nil {
		return nil, err
	}
	if err := validation.Validate(ctx, in); err != nil {
		return nil, err
	}

	var reg *models.Registration
	err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ev, err := s.Events.WithTx(tx).GetEvent(ctx, in.EventID)
		if err != nil {
			return err
		}
		if ev.Type != models.EventTypeNormal {
			return apperr.Validationf("merchandise events are bought through a merchandise order")
		}
		if ev.Status != models.EventPublished {
			return apperr.ErrEventNotOpen
		}
		now := s.Now()
		if now.After(ev.RegistrationDeadline) {
			return apperr.ErrDeadlinePassed
		}
		if err := checkForm(ev.CustomFields, in.FormResponses); err != nil {
			return err
		}

		regs := s.Registrations.WithTx(tx)
		existing, err := regs.FindActiveNormal(ctx, ev.ID, caller.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.ErrDuplicateRegistration
		}
		if err := s.Ledger.ReserveSeat(ctx, tx, ev.ID); err != nil {
			return err
		}

		reg = &models.Registration{
			ID:            uuid.NewString(),
			EventID:       ev.ID,
			ParticipantID: caller.UserID,
			Type:          models.RegistrationNormal,
			Status:        models.RegistrationRegistered,
			FormResponses: in.FormResponses,
			AmountPaid:    ev.RegistrationFee,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := regs.Create(ctx, reg); err != nil {
			return err
		}
		if _, err := s.Issuer.Issue(ctx, tx, reg); err != nil {
			return err
		}
		reg.Event = ev
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogRegistration("REGISTER", reg.ID, fmt.Sprintf("participant %s registered for event %s", caller.UserID, reg.EventID))
	s.Stats.RefreshStats(ctx, reg.EventID)
	s.attachParticipant(ctx, reg)
	s.Notifier.Notify(ctx, models.NotifyTicketIssued, reg.ID, notify.RegistrationNoticeFor(reg, nil))
	return reg, nil
}

// PurchaseMerchandise places an order. Stock is only checked here; it is
// decremented when the organizer approves the payment.
func (s *RegistrationService) PurchaseMerchandise(ctx context.Context, caller auth.Identity, in PurchaseInput) (*Order, error) {
	if err := auth.Authorize(auth.OpPurchaseMerchandise, caller, auth.Resource{}); err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, apperr.ErrNoItemsSelected.WithMessage("no items selected for purchase")
	}
	if err := validation.Validate(ctx, in); err != nil {
		return nil, err
	}

	order := &Order{}
	err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ev, err := s.Events.WithTx(tx).GetEvent(ctx, in.EventID)
		if err != nil {
			return err
		}
		if ev.Type != models.EventTypeMerchandise {
			return apperr.ErrNotMerchandise
		}
		if ev.Status != models.EventPublished {
			return apperr.ErrEventNotOpen
		}

		regs := s.Registrations.WithTx(tx)
		now := s.Now()
		for _, line := range in.Items {
			item := ev.ItemByID(line.ItemID)
			if item == nil {
				return apperr.ErrItemNotFound.WithMessage("item %s not found", line.ItemID)
			}
			if line.Quantity <= 0 {
				continue
			}
			if err := s.Ledger.CheckStock(item, line.Quantity); err != nil {
				return err
			}
			if err := checkVariant("size", line.Size, item.Sizes); err != nil {
				return err
			}
			if err := checkVariant("color", line.Color, item.Colors); err != nil {
				return err
			}

			reg := &models.Registration{
				ID:            uuid.NewString(),
				EventID:       ev.ID,
				ParticipantID: caller.UserID,
				Type:          models.RegistrationMerchandise,
				Status:        models.RegistrationPending,
				Merchandise: models.MerchandiseSelection{
					ItemID:    item.ID,
					ItemName:  item.Name,
					Size:      line.Size,
					Color:     line.Color,
					UnitPrice: item.BasePrice,
					Quantity:  line.Quantity,
				},
				AmountPaid: item.BasePrice * float64(line.Quantity),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := regs.Create(ctx, reg); err != nil {
				return err
			}
			reg.Event = ev
			order.Registrations = append(order.Registrations, reg)
			order.TotalAmount += reg.AmountPaid
		}
		if len(order.Registrations) == 0 {
			return apperr.ErrNoItemsSelected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogRegistration("ORDER", in.EventID, fmt.Sprintf("participant %s ordered %d item type(s), total %.2f",
		caller.UserID, len(order.Registrations), order.TotalAmount))
	return order, nil
}

// UploadPaymentProof attaches a proof reference to a pending or rejected
// order and puts it back in the review queue.
func (s *RegistrationService) UploadPaymentProof(ctx context.Context, caller auth.Identity, id, proofRef string) (*models.Registration, error) {
	reg, err := s.Registrations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpUploadPaymentProof, caller, auth.Resource{ParticipantID: reg.ParticipantID}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(proofRef) == "" {
		return nil, apperr.Validationf("payment proof is required")
	}
	if reg.Type != models.RegistrationMerchandise {
		return nil, apperr.Validationf("this is not a merchandise order")
	}
	from := []models.RegistrationStatus{models.RegistrationPending, models.RegistrationRejected}
	if !models.StatusIn(reg.Status, from) {
		return nil, apperr.ErrInvalidTransition.WithMessage("payment proof can only be uploaded for pending or rejected orders")
	}

	reg.PaymentProofRef = proofRef
	reg.PaymentProofSubmittedAt = s.Now()
	reg.Status = models.RegistrationPending
	ok, err := s.Registrations.UpdateStatus(ctx, reg, from, "payment_proof_ref", "payment_proof_submitted_at")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrInvalidTransition.WithMessage("order %s changed status concurrently", reg.ID)
	}
	s.Logger.LogRegistration("PROOF", reg.ID, "payment proof uploaded")
	return reg, nil
}

// Approve confirms a pending order. Stock is taken at this point, so an
// order placed while stock was available can still lose to earlier
// approvals.
func (s *RegistrationService) Approve(ctx context.Context, caller auth.Identity, id, note string) (*models.Registration, error) {
	reg, err := s.Registrations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpApproveRegistration, caller, s.resourceOf(reg)); err != nil {
		return nil, err
	}
	if reg.Status != models.RegistrationPending {
		return nil, apperr.ErrInvalidTransition.WithMessage("only pending orders can be approved")
	}

	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if reg.Type == models.RegistrationMerchandise {
			sel := reg.Merchandise
			if err := s.Ledger.ReserveStock(ctx, tx, sel.ItemID, sel.Quantity); err != nil {
				if capacity.IsExhausted(err) {
					return apperr.ErrStockConflict.WithMessage(
						"stock-conflict-at-approval: not enough %s left for %d unit(s)", sel.ItemName, sel.Quantity)
				}
				return err
			}
		}
		reg.Status = models.RegistrationApproved
		columns := []string{}
		if note = strings.TrimSpace(note); note != "" {
			reg.AdminNotes = note
			columns = append(columns, "admin_notes")
		}
		ok, err := s.Registrations.WithTx(tx).UpdateStatus(ctx, reg, []models.RegistrationStatus{models.RegistrationPending}, columns...)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrInvalidTransition.WithMessage("order %s changed status concurrently", reg.ID)
		}
		_, err = s.Issuer.Issue(ctx, tx, reg)
		return err
	})
	if err != nil {
		reg.Status = models.RegistrationPending
		return nil, err
	}

	s.Logger.LogRegistration("APPROVE", reg.ID, fmt.Sprintf("approved by %s, ticket %s", caller.UserID, reg.TicketID))
	s.Stats.RefreshStats(ctx, reg.EventID)
	s.Notifier.Notify(ctx, models.NotifyPaymentApproved, reg.ID, notify.RegistrationNoticeFor(reg, nil))
	return reg, nil
}

func (s *RegistrationService) Reject(ctx context.Context, caller auth.Identity, id, note string) (*models.Registration, error) {
	reg, err := s.Registrations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpRejectRegistration, caller, s.resourceOf(reg)); err != nil {
		return nil, err
	}
	if reg.Status != models.RegistrationPending {
		return nil, apperr.ErrInvalidTransition.WithMessage("only pending orders can be rejected")
	}

	reg.Status = models.RegistrationRejected
	reg.AdminNotes = strings.TrimSpace(note)
	if reg.AdminNotes == "" {
		reg.AdminNotes = defaultRejectNote
	}
	ok, err := s.Registrations.UpdateStatus(ctx, reg, []models.RegistrationStatus{models.RegistrationPending}, "admin_notes")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrInvalidTransition.WithMessage("order %s changed status concurrently", reg.ID)
	}

	s.Logger.LogRegistration("REJECT", reg.ID, fmt.Sprintf("rejected by %s: %s", caller.UserID, reg.AdminNotes))
	s.Notifier.Notify(ctx, models.NotifyPaymentRejected, reg.ID, notify.RegistrationNoticeFor(reg, nil))
	return reg, nil
}

// Cancel withdraws the caller's registration and gives back whatever seat or
// stock it held.
func (s *RegistrationService) Cancel(ctx context.Context, caller auth.Identity, id string) (*models.Registration, error) {
	reg, err := s.Registrations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpCancelRegistration, caller, auth.Resource{ParticipantID: reg.ParticipantID}); err != nil {
		return nil, err
	}
	if !models.StatusIn(reg.Status, models.CancellableStatuses) {
		return nil, apperr.ErrInvalidTransition.WithMessage("cannot cancel a registration with status: %s", reg.Status)
	}

	prev := reg.Status
	held := reg.HoldsCapacity()
	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		reg.Status = models.RegistrationCancelled
		ok, err := s.Registrations.WithTx(tx).UpdateStatus(ctx, reg, []models.RegistrationStatus{prev})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrInvalidTransition.WithMessage("registration %s changed status concurrently", reg.ID)
		}
		if !held {
			return nil
		}
		if reg.Type == models.RegistrationMerchandise {
			return s.Ledger.ReleaseStock(ctx, tx, reg.Merchandise.ItemID, reg.Merchandise.Quantity)
		}
		return s.Ledger.ReleaseSeat(ctx, tx, reg.EventID)
	})
	if err != nil {
		reg.Status = prev
		return nil, err
	}

	s.Logger.LogRegistration("CANCEL", reg.ID, fmt.Sprintf("cancelled from %s, capacity released: %t", prev, held))
	if models.StatusIn(prev, models.EligibleStatuses) {
		s.Stats.RefreshStats(ctx, reg.EventID)
	}
	s.Notifier.Notify(ctx, models.NotifyRegistrationCancelled, reg.ID, notify.RegistrationNoticeFor(reg, nil))
	return reg, nil
}

// Get returns a registration with its attendance audit log.
func (s *RegistrationService) Get(ctx context.Context, caller auth.Identity, id string) (*models.Registration, error) {
	reg, err := s.Registrations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpViewRegistration, caller, s.resourceOf(reg)); err != nil {
		return nil, err
	}
	entries, err := s.Registrations.GetAuditLog(ctx, reg.ID)
	if err != nil {
		return nil, err
	}
	reg.AuditLog = make([]*models.AttendanceAudit, len(entries))
	for i := range entries {
		reg.AuditLog[i] = &entries[i]
	}
	return reg, nil
}

func (s *RegistrationService) ListMine(ctx context.Context, caller auth.Identity, f regdb.ListFilter) ([]models.Registration, error) {
	if err := auth.Authorize(auth.OpListMyRegistrations, caller, auth.Resource{}); err != nil {
		return nil, err
	}
	return s.Registrations.ListByParticipant(ctx, caller.UserID, f)
}

// ListForEvent returns every registration of an event the caller organizes,
// with the event loaded for projections.
func (s *RegistrationService) ListForEvent(ctx context.Context, caller auth.Identity, eventID string) (*models.Event, []models.Registration, error) {
	ev, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if err := auth.Authorize(auth.OpListEventRegistrants, caller, auth.Resource{OrganizerUserID: ev.OrganizerUserID()}); err != nil {
		return nil, nil, err
	}
	regs, err := s.Registrations.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	return ev, regs, nil
}

// TicketImage renders the QR code of the caller's ticket.
func (s *RegistrationService) TicketImage(ctx context.Context, caller auth.Identity, id string) ([]byte, error) {
	reg, err := s.Registrations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpViewRegistration, caller, s.resourceOf(reg)); err != nil {
		return nil, err
	}
	return s.Issuer.Image(reg)
}

func (s *RegistrationService) resourceOf(reg *models.Registration) auth.Resource {
	res := auth.Resource{ParticipantID: reg.ParticipantID}
	if reg.Event != nil {
		res.OrganizerUserID = reg.Event.OrganizerUserID()
	}
	return res
}

func (s *RegistrationService) attachParticipant(ctx context.Context, reg *models.Registration) {
	user, err := s.Users.GetUser(ctx, reg.ParticipantID)
	if err != nil {
		s.Logger.Warn("REGISTRATION", fmt.Sprintf("Failed to load participant %s: %v", reg.ParticipantID, err))
		return
	}
	reg.Participant = user
}

// checkForm requires an answer for every required custom field. Answers are
// keyed by field id or field name.
func checkForm(fields []models.CustomField, answers map[string]interface{}) error {
	for _, f := range fields {
		if !f.Required {
			continue
		}
		v, ok := answers[f.ID]
		if !ok {
			v, ok = answers[f.Name]
		}
		if !ok || isBlank(v) {
			return apperr.Validationf("%s is required", f.Name)
		}
	}
	return nil
}

func isBlank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	}
	return false
}

func checkVariant(name, value string, allowed []string) error {
	if value == "" || len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return nil
		}
	}
	return apperr.Validationf("%s must be one of [%s]", name, strings.Join(allowed, " "))
}
