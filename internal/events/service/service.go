package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-fest/internal/apperr"
	"ms-fest/internal/attendance"
	"ms-fest/internal/auth"
	eventdb "ms-fest/internal/events/db"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	"ms-fest/internal/notify"
	orgdb "ms-fest/internal/organizers/db"
	regdb "ms-fest/internal/registrations/db"
	"ms-fest/internal/validation"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ItemInput struct {
	Name         string   `json:"name" validate:"notblank"`
	Description  string   `json:"description"`
	BasePrice    float64  `json:"base_price" validate:"gte=0"`
	Stock        int      `json:"stock" validate:"gte=0"`
	MaxPerPerson int      `json:"max_per_person" validate:"omitempty,gte=1"`
	Sizes        []string `json:"sizes"`
	Colors       []string `json:"colors"`
}

type CustomFieldInput struct {
	Name     string   `json:"name" validate:"notblank"`
	Type     string   `json:"type" validate:"oneof=text email phone number date textarea select checkbox file"`
	Required bool     `json:"required"`
	Options  []string `json:"options"`
}

type CreateEventInput struct {
	Name                 string             `json:"name" validate:"notblank"`
	Description          string             `json:"description"`
	Type                 models.EventType   `json:"type" validate:"oneof=NORMAL MERCHANDISE"`
	Eligibility          string             `json:"eligibility"`
	RegistrationDeadline time.Time          `json:"registration_deadline" validate:"required"`
	StartDate            time.Time          `json:"start_date" validate:"required"`
	EndDate              time.Time          `json:"end_date" validate:"required"`
	RegistrationLimit    int                `json:"registration_limit" validate:"gte=0"`
	RegistrationFee      float64            `json:"registration_fee" validate:"gte=0"`
	Category             string             `json:"category"`
	Tags                 []string           `json:"tags"`
	Venue                string             `json:"venue"`
	IsOnline             bool               `json:"is_online"`
	CustomFields         []CustomFieldInput `json:"custom_fields" validate:"dive"`
	MerchandiseItems     []ItemInput        `json:"merchandise_items" validate:"dive"`
}

// newItems builds fresh item rows for eventID. MaxPerPerson defaults to 5.
func newItems(eventID string, inputs []ItemInput) []*models.MerchandiseItem {
	items := make([]*models.MerchandiseItem, 0, len(inputs))
	for _, it := range inputs {
		maxPer := it.MaxPerPerson
		if maxPer == 0 {
			maxPer = 5
		}
		items = append(items, &models.MerchandiseItem{
			ID:           uuid.NewString(),
			EventID:      eventID,
			Name:         strings.TrimSpace(it.Name),
			Description:  it.Description,
			BasePrice:    it.BasePrice,
			Stock:        it.Stock,
			MaxPerPerson: maxPer,
			Sizes:        it.Sizes,
			Colors:       it.Colors,
		})
	}
	return items
}

// EventSummary is an organizer's view of one event with its live counts.
type EventSummary struct {
	models.Event
	ActiveRegistrations int     `json:"active_registrations"`
	PendingCount        int     `json:"pending_count"`
	TotalRevenue        float64 `json:"total_revenue"`
}

// StatusChange reports what a transition did.
type StatusChange struct {
	Event         *models.Event `json:"event"`
	From          string        `json:"from"`
	To            string        `json:"to"`
	Registrations int           `json:"registrations_updated"`

	cancelled []models.Registration
}

type EventService struct {
	DB         *bun.DB
	Events     *eventdb.DB
	Organizers *orgdb.DB
	Notifier   notify.Notifier
	Stats      attendance.StatsRefresher
	Logger     *logger.Logger
	Now        func() time.Time
}

func NewEventService(db *bun.DB, notifier notify.Notifier, log *logger.Logger) *EventService {
	return &EventService{
		DB:         db,
		Events:     &eventdb.DB{Bun: db},
		Organizers: &orgdb.DB{Bun: db},
		Notifier:   notifier,
		Stats:      attendance.NoCache{},
		Logger:     log,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *EventService) CreateEvent(ctx context.Context, caller auth.Identity, in CreateEventInput) (*models.Event, error) {
	if err := auth.Authorize(auth.OpCreateEvent, caller, auth.Resource{}); err != nil {
		return nil, err
	}
	if err := validation.Validate(ctx, in); err != nil {
		return nil, err
	}
	org, err := s.Organizers.GetByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if in.Type == models.EventTypeMerchandise && len(in.MerchandiseItems) == 0 {
		return nil, apperr.Validationf("merchandise events need at least one item")
	}

	now := s.Now()
	ev := &models.Event{
		ID:                   uuid.NewString(),
		OrganizerID:          org.ID,
		Name:                 strings.TrimSpace(in.Name),
		Description:          in.Description,
		Type:                 in.Type,
		Eligibility:          in.Eligibility,
		Status:               models.EventDraft,
		RegistrationDeadline: in.RegistrationDeadline.UTC(),
		StartDate:            in.StartDate.UTC(),
		EndDate:              in.EndDate.UTC(),
		RegistrationLimit:    in.RegistrationLimit,
		RegistrationFee:      in.RegistrationFee,
		Category:             in.Category,
		Tags:                 in.Tags,
		Venue:                in.Venue,
		IsOnline:             in.IsOnline,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	for _, f := range in.CustomFields {
		ev.CustomFields = append(ev.CustomFields, models.CustomField{
			ID:       uuid.NewString(),
			Name:     f.Name,
			Type:     f.Type,
			Required: f.Required,
			Options:  f.Options,
		})
	}
	if in.Type == models.EventTypeMerchandise {
		ev.MerchandiseItems = newItems(ev.ID, in.MerchandiseItems)
	}
	if err := validateDates(ev); err != nil {
		return nil, err
	}

	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.Events.WithTx(tx).CreateEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	ev.Organizer = org
	s.Logger.LogEvent("CREATE", ev.ID, fmt.Sprintf("draft %q created by organizer %s", ev.Name, org.ID))
	return ev, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	return s.Events.GetEvent(ctx, id)
}

func (s *EventService) Browse(ctx context.Context, f eventdb.BrowseFilter) ([]models.Event, error) {
	return s.Events.Browse(ctx, f)
}

// ListOrganizerEvents returns the caller's events with active registration
// count, pending count and revenue.
func (s *EventService) ListOrganizerEvents(ctx context.Context, caller auth.Identity) ([]EventSummary, error) {
	if err := auth.Authorize(auth.OpListOrganizerEvents, caller, auth.Resource{}); err != nil {
		return nil, err
	}
	org, err := s.Organizers.GetByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	evs, err := s.Events.ListByOrganizer(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	regs := &regdb.DB{Bun: s.DB}
	out := make([]EventSummary, 0, len(evs))
	for _, ev := range evs {
		counts, err := regs.CountByStatus(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		revenue, err := regs.Revenue(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, EventSummary{
			Event: ev,
			ActiveRegistrations: counts[models.RegistrationRegistered] + counts[models.RegistrationCompleted] +
				counts[models.RegistrationApproved] + counts[models.RegistrationPending],
			PendingCount: counts[models.RegistrationPending],
			TotalRevenue: revenue,
		})
	}
	return out, nil
}

// UpdateEvent applies a patch under the edit policy. A status in the patch
// is carried out through the same transition path as the dedicated
// operations.
func (s *EventService) UpdateEvent(ctx context.Context, caller auth.Identity, id string, p Patch) (*models.Event, error) {
	ev, err := s.Events.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpUpdateEvent, caller, auth.Resource{OrganizerUserID: ev.OrganizerUserID()}); err != nil {
		return nil, err
	}

	if err := validation.Validate(ctx, p); err != nil {
		return nil, err
	}

	changed, target, err := ApplyPatch(ev, p)
	if err != nil {
		return nil, err
	}
	var columns []string
	replaceItems := false
	for _, c := range changed {
		if c == itemsColumn {
			replaceItems = true
			continue
		}
		columns = append(columns, c)
	}
	if target != nil && *target == models.EventPublished {
		if err := s.requireActive(ev); err != nil {
			return nil, err
		}
	}

	var change *StatusChange
	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		store := s.Events.WithTx(tx)
		if len(columns) > 0 || replaceItems {
			if err := store.UpdateEvent(ctx, ev, columns...); err != nil {
				return err
			}
		}
		if replaceItems {
			if err := store.ReplaceItems(ctx, ev.ID, ev.MerchandiseItems); err != nil {
				return err
			}
		}
		if target == nil {
			return nil
		}
		var terr error
		change, terr = s.transition(ctx, tx, ev, []models.EventStatus{ev.Status}, *target)
		return terr
	})
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		s.Logger.LogEvent("UPDATE", ev.ID, fmt.Sprintf("updated %s", strings.Join(changed, ", ")))
	}
	if change != nil {
		s.afterTransition(ctx, ev, change)
	}
	return s.Events.GetEvent(ctx, id)
}

func (s *EventService) PublishEvent(ctx context.Context, caller auth.Identity, id string) (*models.Event, error) {
	ev, err := s.Events.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpPublishEvent, caller, auth.Resource{OrganizerUserID: ev.OrganizerUserID()}); err != nil {
		return nil, err
	}
	if err := s.requireActive(ev); err != nil {
		return nil, err
	}
	if ev.Status != models.EventDraft {
		return nil, apperr.ErrInvalidTransition.WithMessage("only draft events can be published")
	}
	return s.runTransition(ctx, ev, []models.EventStatus{models.EventDraft}, models.EventPublished)
}

func (s *EventService) CancelEvent(ctx context.Context, caller auth.Identity, id string) (*StatusChange, error) {
	ev, err := s.Events.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpCancelEvent, caller, auth.Resource{OrganizerUserID: ev.OrganizerUserID()}); err != nil {
		return nil, err
	}
	if ev.Status != models.EventDraft && ev.Status != models.EventPublished {
		return nil, apperr.ErrInvalidTransition.WithMessage("only draft or published events can be cancelled")
	}

	var change *StatusChange
	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var terr error
		change, terr = s.transition(ctx, tx, ev, []models.EventStatus{models.EventDraft, models.EventPublished}, models.EventCancelled)
		return terr
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, ev, change)
	return change, nil
}

// AdvanceStatus is the scheduler's entry point: move from -> to if the event
// is still in from, with the registration cascade in the same transaction.
// It reports false when another writer moved the event first.
func (s *EventService) AdvanceStatus(ctx context.Context, id string, from, to models.EventStatus) (bool, error) {
	ev, err := s.Events.GetEvent(ctx, id)
	if err != nil {
		return false, err
	}
	if ev.Status != from {
		return false, nil
	}
	var change *StatusChange
	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var terr error
		change, terr = s.transition(ctx, tx, ev, []models.EventStatus{from}, to)
		return terr
	})
	if err != nil {
		if apperr.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	s.afterTransition(ctx, ev, change)
	return true, nil
}

func (s *EventService) runTransition(ctx context.Context, ev *models.Event, from []models.EventStatus, to models.EventStatus) (*models.Event, error) {
	var change *StatusChange
	err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		change, err = s.transition(ctx, tx, ev, from, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, ev, change)
	return ev, nil
}

// transition moves the event and sweeps its registrations inside tx. The
// event row is compare-and-swapped on its status, so two concurrent
// transitions cannot both apply.
func (s *EventService) transition(ctx context.Context, tx bun.Tx, ev *models.Event, from []models.EventStatus, to models.EventStatus) (*StatusChange, error) {
	prev := ev.Status
	if !CanTransition(prev, to) {
		return nil, apperr.ErrInvalidTransition.WithMessage("cannot move event from %s to %s", prev, to)
	}
	at := s.Now()
	ok, err := s.Events.WithTx(tx).TransitionStatus(ctx, ev.ID, from, to, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrInvalidTransition.WithMessage("event %s changed status concurrently", ev.ID)
	}

	change := &StatusChange{Event: ev, From: string(prev), To: string(to)}
	if to == models.EventCancelled {
		// Collected before the sweep so participants can be told afterwards.
		change.cancelled, err = (&regdb.DB{Bun: tx}).ListByEvent(ctx, ev.ID, models.CancellableStatuses...)
		if err != nil {
			return nil, err
		}
	}
	swept, err := Cascade(ctx, tx, ev.ID, to, at)
	if err != nil {
		return nil, err
	}
	change.Registrations = swept

	ev.Status = to
	ev.UpdatedAt = at
	if to == models.EventPublished {
		ev.PublishedAt = at
	}
	return change, nil
}

// Cascade applies the registration sweep that goes with an event status. It
// is idempotent and is also what the reconciliation pass runs.
func Cascade(ctx context.Context, db bun.IDB, eventID string, status models.EventStatus, at time.Time) (int, error) {
	regs := &regdb.DB{Bun: db}
	switch status {
	case models.EventCompleted, models.EventClosed:
		return regs.Sweep(ctx, eventID, models.CompletableStatuses, models.RegistrationCompleted, at)
	case models.EventCancelled:
		return regs.Sweep(ctx, eventID, models.CancellableStatuses, models.RegistrationCancelled, at)
	}
	return 0, nil
}

func (s *EventService) afterTransition(ctx context.Context, ev *models.Event, change *StatusChange) {
	s.Logger.LogEvent("STATUS", ev.ID, fmt.Sprintf("%s -> %s, %d registrations updated", change.From, change.To, change.Registrations))
	if change.Registrations > 0 {
		s.Stats.RefreshStats(ctx, ev.ID)
	}
	for i := range change.cancelled {
		reg := &change.cancelled[i]
		notice := notify.RegistrationNoticeFor(reg, ev)
		notice.Note = "The event was cancelled by the organizer"
		s.Notifier.Notify(ctx, models.NotifyRegistrationCancelled, reg.ID, notice)
	}
	if change.To != string(models.EventPublished) {
		return
	}
	notice := models.EventPublishedNotice{
		EventID:              ev.ID,
		Name:                 ev.Name,
		Description:          ev.Description,
		Type:                 ev.Type,
		Eligibility:          ev.Eligibility,
		RegistrationFee:      ev.RegistrationFee,
		Venue:                ev.Venue,
		IsOnline:             ev.IsOnline,
		StartDate:            ev.StartDate,
		RegistrationDeadline: ev.RegistrationDeadline,
	}
	if ev.Organizer != nil {
		notice.OrganizerName = ev.Organizer.Name
		notice.WebhookURL = ev.Organizer.DiscordWebhookURL
	}
	s.Notifier.Notify(ctx, models.NotifyEventPublished, ev.ID, notice)
}

func (s *EventService) requireActive(ev *models.Event) error {
	if ev.Organizer == nil {
		return apperr.ErrOrganizerNotFound
	}
	if !ev.Organizer.IsActive {
		return apperr.ErrOrganizerInactive.WithMessage("your organizer account is disabled; contact an admin to re-enable it")
	}
	return nil
}
