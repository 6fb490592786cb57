package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-fest/internal/apperr"
	"ms-fest/internal/auth"
	"ms-fest/internal/database/dbtest"
	events "ms-fest/internal/events/service"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	"ms-fest/internal/notify/notifytest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// MockNotifier is a mock implementation of notify.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, kind models.NotificationKind, aggregateID string, payload interface{}) {
	m.Called(ctx, kind, aggregateID, payload)
}

// MockStats is a mock implementation of attendance.StatsRefresher
type MockStats struct {
	mock.Mock
}

func (m *MockStats) RefreshStats(ctx context.Context, eventID string) {
	m.Called(ctx, eventID)
}

var organizer = auth.Identity{UserID: "org-user", Role: auth.RoleOrganizer}

func createInput() events.CreateEventInput {
	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)
	return events.CreateEventInput{
		Name:                 "Battle of Bands",
		Type:                 models.EventTypeNormal,
		RegistrationDeadline: start.Add(-24 * time.Hour),
		StartDate:            start,
		EndDate:              start.Add(4 * time.Hour),
		RegistrationLimit:    50,
		CustomFields:         []events.CustomFieldInput{{Name: "Band name", Type: "text", Required: true}},
	}
}

func TestCreateEvent(t *testing.T) {
	db := dbtest.NewDB(t)
	svc := events.NewEventService(db, &notifytest.Recorder{}, logger.NewNopLogger())
	ctx := context.Background()
	dbtest.SeedOrganizer(t, db, organizer.UserID, true)

	// Test case 1: a valid draft
	ev, err := svc.CreateEvent(ctx, organizer, createInput())
	require.NoError(t, err)
	assert.Equal(t, models.EventDraft, ev.Status)
	require.Len(t, ev.CustomFields, 1)
	assert.NotEmpty(t, ev.CustomFields[0].ID)

	stored, err := svc.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Battle of Bands", stored.Name)
	assert.Equal(t, organizer.UserID, stored.OrganizerUserID())

	// Test case 2: merchandise without items
	in := createInput()
	in.Type = models.EventTypeMerchandise
	_, err = svc.CreateEvent(ctx, organizer, in)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	// Test case 3: merchandise items default their per-person cap
	in.MerchandiseItems = []events.ItemInput{{Name: "Tee", BasePrice: 300, Stock: 20}}
	merch, err := svc.CreateEvent(ctx, organizer, in)
	require.NoError(t, err)
	require.Len(t, merch.MerchandiseItems, 1)
	assert.Equal(t, 5, merch.MerchandiseItems[0].MaxPerPerson)

	// Test case 4: end before start
	in = createInput()
	in.EndDate = in.StartDate.Add(-time.Hour)
	_, err = svc.CreateEvent(ctx, organizer, in)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	// Test case 5: blank name
	in = createInput()
	in.Name = "  "
	_, err = svc.CreateEvent(ctx, organizer, in)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	// Test case 6: participants cannot create events
	_, err = svc.CreateEvent(ctx, auth.Identity{UserID: "p1", Role: auth.RoleParticipant}, createInput())
	assert.True(t, errors.Is(err, apperr.ErrNotAuthorized))
}

func TestPublishEvent(t *testing.T) {
	db := dbtest.NewDB(t)
	notifier := new(MockNotifier)
	svc := events.NewEventService(db, notifier, logger.NewNopLogger())
	ctx := context.Background()
	org := dbtest.SeedOrganizer(t, db, organizer.UserID, true)
	draft := dbtest.SeedEvent(t, db, org.ID, func(e *models.Event) { e.Status = models.EventDraft })

	notifier.On("Notify", mock.Anything, models.NotifyEventPublished, draft.ID, mock.MatchedBy(func(n models.EventPublishedNotice) bool {
		return n.Name == draft.Name && n.WebhookURL == org.DiscordWebhookURL
	})).Once()

	ev, err := svc.PublishEvent(ctx, organizer, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventPublished, ev.Status)
	assert.False(t, dbtest.ReloadEvent(t, db, draft.ID).PublishedAt.IsZero())
	notifier.AssertExpectations(t)

	// Test case: publishing twice is refused
	_, err = svc.PublishEvent(ctx, organizer, draft.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
}

func TestPublishRequiresActiveOrganizer(t *testing.T) {
	db := dbtest.NewDB(t)
	svc := events.NewEventService(db, &notifytest.Recorder{}, logger.NewNopLogger())
	ctx := context.Background()
	org := dbtest.SeedOrganizer(t, db, organizer.UserID, false)
	draft := dbtest.SeedEvent(t, db, org.ID, func(e *models.Event) { e.Status = models.EventDraft })

	_, err := svc.PublishEvent(ctx, organizer, draft.ID)
	assert.True(t, errors.Is(err, apperr.ErrOrganizerInactive))

	published := models.EventPublished
	_, err = svc.UpdateEvent(ctx, organizer, draft.ID, events.Patch{Status: &published})
	assert.True(t, errors.Is(err, apperr.ErrOrganizerInactive))
	assert.Equal(t, models.EventDraft, dbtest.ReloadEvent(t, db, draft.ID).Status)

	// Another organizer never gets that far.
	_, err = svc.PublishEvent(ctx, auth.Identity{UserID: "intruder", Role: auth.RoleOrganizer}, draft.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotAuthorized))
}

func TestCancelEventCascades(t *testing.T) {
	db := dbtest.NewDB(t)
	notes := &notifytest.Recorder{}
	svc := events.NewEventService(db, notes, logger.NewNopLogger())
	ctx := context.Background()
	org := dbtest.SeedOrganizer(t, db, organizer.UserID, true)
	ev := dbtest.SeedEvent(t, db, org.ID, nil)
	stats := &MockStats{}
	stats.On("RefreshStats", mock.Anything, ev.ID).Return()
	svc.Stats = stats

	statuses := []models.RegistrationStatus{
		models.RegistrationRegistered, models.RegistrationApproved, models.RegistrationPending,
		models.RegistrationRejected, models.RegistrationCancelled,
	}
	for i, status := range statuses {
		dbtest.SeedRegistration(t, db, &models.Registration{
			EventID:       ev.ID,
			ParticipantID: "p" + string(rune('1'+i)),
			Type:          models.RegistrationMerchandise,
			Status:        status,
		})
	}

	change, err := svc.CancelEvent(ctx, organizer, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "PUBLISHED", change.From)
	assert.Equal(t, "CANCELLED", change.To)
	assert.Equal(t, 3, change.Registrations)
	// Cached attendance tallies must follow the cascade.
	stats.AssertNumberOfCalls(t, "RefreshStats", 1)

	var live int
	live, err = db.NewSelect().Model((*models.Registration)(nil)).
		Where("event_id = ?", ev.ID).
		Where("status IN (?)", bun.In(models.CancellableStatuses)).
		Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, live)

	kinds := notes.Kinds()
	assert.Len(t, kinds, 3)
	for _, k := range kinds {
		assert.Equal(t, models.NotifyRegistrationCancelled, k)
	}

	// Test case: cancelling a cancelled event
	_, err = svc.CancelEvent(ctx, organizer, ev.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
}

func TestCloseOngoingEventCompletesRegistrations(t *testing.T) {
	db := dbtest.NewDB(t)
	svc := events.NewEventService(db, &notifytest.Recorder{}, logger.NewNopLogger())
	ctx := context.Background()
	org := dbtest.SeedOrganizer(t, db, organizer.UserID, true)
	ev := dbtest.SeedEvent(t, db, org.ID, func(e *models.Event) { e.Status = models.EventOngoing })

	done := dbtest.SeedRegistration(t, db, &models.Registration{EventID: ev.ID, ParticipantID: "p1", Status: models.RegistrationRegistered})
	pending := dbtest.SeedRegistration(t, db, &models.Registration{
		EventID: ev.ID, ParticipantID: "p2", Type: models.RegistrationMerchandise, Status: models.RegistrationPending,
	})

	closed := models.EventClosed
	updated, err := svc.UpdateEvent(ctx, organizer, ev.ID, events.Patch{Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, models.EventClosed, updated.Status)

	assert.Equal(t, models.RegistrationCompleted, dbtest.ReloadRegistration(t, db, done.ID).Status)
	assert.Equal(t, models.RegistrationPending, dbtest.ReloadRegistration(t, db, pending.ID).Status)
}

func TestAdvanceStatus(t *testing.T) {
	db := dbtest.NewDB(t)
	svc := events.NewEventService(db, &notifytest.Recorder{}, logger.NewNopLogger())
	ctx := context.Background()
	org := dbtest.SeedOrganizer(t, db, organizer.UserID, true)
	ev := dbtest.SeedEvent(t, db, org.ID, nil)

	moved, err := svc.AdvanceStatus(ctx, ev.ID, models.EventPublished, models.EventOngoing)
	require.NoError(t, err)
	assert.True(t, moved)

	// A second run from the stale status is a no-op, not an error.
	moved, err = svc.AdvanceStatus(ctx, ev.ID, models.EventPublished, models.EventOngoing)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, models.EventOngoing, dbtest.ReloadEvent(t, db, ev.ID).Status)
}

func TestListOrganizerEvents(t *testing.T) {
	db := dbtest.NewDB(t)
	svc := events.NewEventService(db, &notifytest.Recorder{}, logger.NewNopLogger())
	ctx := context.Background()
	org := dbtest.SeedOrganizer(t, db, organizer.UserID, true)
	ev := dbtest.SeedEvent(t, db, org.ID, nil)

	dbtest.SeedRegistration(t, db, &models.Registration{EventID: ev.ID, ParticipantID: "p1", Status: models.RegistrationRegistered, AmountPaid: 100})
	dbtest.SeedRegistration(t, db, &models.Registration{
		EventID: ev.ID, ParticipantID: "p2", Type: models.RegistrationMerchandise, Status: models.RegistrationPending, AmountPaid: 40,
	})
	dbtest.SeedRegistration(t, db, &models.Registration{EventID: ev.ID, ParticipantID: "p3", Status: models.RegistrationCancelled, AmountPaid: 100})

	summaries, err := svc.ListOrganizerEvents(ctx, organizer)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].ActiveRegistrations)
	assert.Equal(t, 1, summaries[0].PendingCount)
	assert.Equal(t, 100.0, summaries[0].TotalRevenue)
}

func TestUpdateDraftMerchandiseItems(t *testing.T) {
	db := dbtest.NewDB(t)
	svc := events.NewEventService(db, &notifytest.Recorder{}, logger.NewNopLogger())
	ctx := context.Background()
	dbtest.SeedOrganizer(t, db, organizer.UserID, true)

	in := createInput()
	in.Type = models.EventTypeMerchandise
	in.MerchandiseItems = []events.ItemInput{{Name: "Tote", BasePrice: 49, Stock: 2}}
	ev, err := svc.CreateEvent(ctx, organizer, in)
	require.NoError(t, err)
	oldItem := ev.MerchandiseItems[0].ID

	// Test case 1: a draft replaces its items
	items := []events.ItemInput{
		{Name: "Hoodie", BasePrice: 499, Stock: 20, MaxPerPerson: 2},
		{Name: "Mug", BasePrice: 150, Stock: 40},
	}
	updated, err := svc.UpdateEvent(ctx, organizer, ev.ID, events.Patch{MerchandiseItems: &items})
	require.NoError(t, err)
	require.Len(t, updated.MerchandiseItems, 2)
	byName := map[string]*models.MerchandiseItem{}
	for _, it := range updated.MerchandiseItems {
		byName[it.Name] = it
	}
	require.Contains(t, byName, "Hoodie")
	assert.Equal(t, 20, byName["Hoodie"].Stock)
	assert.InDelta(t, 499.0, byName["Hoodie"].BasePrice, 0.001)
	assert.Equal(t, 2, byName["Hoodie"].MaxPerPerson)
	assert.NotContains(t, byName, "Tote")
	assert.Equal(t, 5, byName["Mug"].MaxPerPerson)

	_, err = svc.Events.GetItem(ctx, oldItem)
	assert.True(t, errors.Is(err, apperr.ErrItemNotFound))

	// Test case 2: invalid items are rejected before anything is written
	bad := []events.ItemInput{{Name: " ", Stock: -1}}
	_, err = svc.UpdateEvent(ctx, organizer, ev.ID, events.Patch{MerchandiseItems: &bad})
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	// Test case 3: items are frozen once published
	_, err = svc.PublishEvent(ctx, organizer, ev.ID)
	require.NoError(t, err)
	_, err = svc.UpdateEvent(ctx, organizer, ev.ID, events.Patch{MerchandiseItems: &items})
	assert.True(t, errors.Is(err, apperr.ErrEditNotAllowed))

	stored, err := svc.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, stored.MerchandiseItems, 2)
}

func TestUpdateDraftTypeToNormalDropsItems(t *testing.T) {
	db := dbtest.NewDB(t)
	svc := events.NewEventService(db, &notifytest.Recorder{}, logger.NewNopLogger())
	ctx := context.Background()
	dbtest.SeedOrganizer(t, db, organizer.UserID, true)

	in := createInput()
	in.Type = models.EventTypeMerchandise
	in.MerchandiseItems = []events.ItemInput{{Name: "Hoodie", BasePrice: 499, Stock: 20}}
	ev, err := svc.CreateEvent(ctx, organizer, in)
	require.NoError(t, err)

	normal := models.EventTypeNormal
	updated, err := svc.UpdateEvent(ctx, organizer, ev.ID, events.Patch{Type: &normal})
	require.NoError(t, err)
	assert.Equal(t, models.EventTypeNormal, updated.Type)
	assert.Empty(t, updated.MerchandiseItems)
}
