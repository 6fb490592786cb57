package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-fest/internal/apperr"
	"ms-fest/internal/database/dbtest"
	"ms-fest/internal/events/db"
	"ms-fest/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEventLoadsRelations(t *testing.T) {
	bunDB := dbtest.NewDB(t)
	eventDB := &db.DB{Bun: bunDB}
	org := dbtest.SeedOrganizer(t, bunDB, "org-user", true)
	ev, item := dbtest.SeedMerchEvent(t, bunDB, org.ID, 10, 2)

	got, err := eventDB.GetEvent(context.Background(), ev.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Organizer)
	assert.Equal(t, "org-user", got.OrganizerUserID())
	require.Len(t, got.MerchandiseItems, 1)
	assert.Equal(t, item.ID, got.MerchandiseItems[0].ID)

	_, err = eventDB.GetEvent(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperr.ErrEventNotFound))

	_, err = eventDB.GetItem(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperr.ErrItemNotFound))
}

func TestTransitionStatusIsGuarded(t *testing.T) {
	bunDB := dbtest.NewDB(t)
	eventDB := &db.DB{Bun: bunDB}
	org := dbtest.SeedOrganizer(t, bunDB, "org-user", true)
	ev := dbtest.SeedEvent(t, bunDB, org.ID, func(e *models.Event) { e.Status = models.EventDraft })
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)

	ok, err := eventDB.TransitionStatus(ctx, ev.ID, []models.EventStatus{models.EventDraft}, models.EventPublished, at)
	require.NoError(t, err)
	assert.True(t, ok)

	stored := dbtest.ReloadEvent(t, bunDB, ev.ID)
	assert.Equal(t, models.EventPublished, stored.Status)
	assert.True(t, stored.PublishedAt.Equal(at))

	// Test case: the event already left DRAFT
	ok, err = eventDB.TransitionStatus(ctx, ev.ID, []models.EventStatus{models.EventDraft}, models.EventCancelled, at)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBrowse(t *testing.T) {
	bunDB := dbtest.NewDB(t)
	eventDB := &db.DB{Bun: bunDB}
	org := dbtest.SeedOrganizer(t, bunDB, "org-user", true)
	now := time.Now().UTC().Truncate(time.Second)

	soon := dbtest.SeedEvent(t, bunDB, org.ID, func(e *models.Event) {
		e.StartDate, e.EndDate = now.Add(48*time.Hour), now.Add(50*time.Hour)
		e.RegistrationDeadline = now.Add(24 * time.Hour)
		e.Eligibility = "all"
	})
	later := dbtest.SeedEvent(t, bunDB, org.ID, func(e *models.Event) { e.Eligibility = "iiit-only" })
	merch, _ := dbtest.SeedMerchEvent(t, bunDB, org.ID, 5, 1)
	dbtest.SeedEvent(t, bunDB, org.ID, func(e *models.Event) { e.Status = models.EventDraft })
	dbtest.SeedEvent(t, bunDB, org.ID, func(e *models.Event) { e.Status = models.EventCancelled })
	ctx := context.Background()

	// Test case 1: only published or ongoing, soonest first
	list, err := eventDB.Browse(ctx, db.BrowseFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, soon.ID, list[0].ID)

	// Test case 2: type filter
	list, err = eventDB.Browse(ctx, db.BrowseFilter{Type: models.EventTypeMerchandise})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, merch.ID, list[0].ID)

	// Test case 3: eligibility filter
	list, err = eventDB.Browse(ctx, db.BrowseFilter{Eligibility: "iiit-only"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, later.ID, list[0].ID)

	// Test case 4: paging
	list, err = eventDB.Browse(ctx, db.BrowseFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	owned, err := eventDB.ListByOrganizer(ctx, org.ID)
	require.NoError(t, err)
	assert.Len(t, owned, 5)
}
