package dbtest

import (
	"context"
	"testing"
	"time"

	"ms-fest/internal/models"
	organizerdb "ms-fest/internal/organizers/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// SeedUser inserts a user with the given id.
func SeedUser(t testing.TB, db bun.IDB, id, role string) *models.User {
	t.Helper()
	user := &models.User{
		ID:        id,
		Email:     id + "@fest.test",
		FirstName: "User",
		LastName:  id,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	store := &organizerdb.DB{Bun: db}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

// SeedOrganizer inserts an organizer profile owned by userID.
func SeedOrganizer(t testing.TB, db bun.IDB, userID string, active bool) *models.Organizer {
	t.Helper()
	SeedUser(t, db, userID, "organizer")
	org := &models.Organizer{
		ID:                uuid.NewString(),
		UserID:            userID,
		Name:              "Club " + userID,
		Category:          models.OrganizerClub,
		ContactEmail:      userID + "@clubs.test",
		DiscordWebhookURL: "https://discord.test/webhook/" + userID,
		IsActive:          active,
		CreatedAt:         time.Now().UTC(),
	}
	store := &organizerdb.DB{Bun: db}
	require.NoError(t, store.CreateOrganizer(context.Background(), org))
	return org
}

// SeedEvent inserts a PUBLISHED NORMAL event a week out with ten seats.
// mutate runs before the insert.
func SeedEvent(t testing.TB, db bun.IDB, organizerID string, mutate func(*models.Event)) *models.Event {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	ev := &models.Event{
		ID:                   uuid.NewString(),
		OrganizerID:          organizerID,
		Name:                 "Hack Night",
		Description:          "overnight hackathon",
		Type:                 models.EventTypeNormal,
		Status:               models.EventPublished,
		RegistrationDeadline: now.Add(5 * 24 * time.Hour),
		StartDate:            now.Add(7 * 24 * time.Hour),
		EndDate:              now.Add(8 * 24 * time.Hour),
		RegistrationLimit:    10,
		Venue:                "Main Hall",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if mutate != nil {
		mutate(ev)
	}
	ctx := context.Background()
	_, err := db.NewInsert().Model(ev).Exec(ctx)
	require.NoError(t, err)
	for _, item := range ev.MerchandiseItems {
		item.EventID = ev.ID
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
	}
	if len(ev.MerchandiseItems) > 0 {
		_, err = db.NewInsert().Model(&ev.MerchandiseItems).Exec(ctx)
		require.NoError(t, err)
	}
	return ev
}

// SeedMerchEvent inserts a PUBLISHED MERCHANDISE event with one item.
func SeedMerchEvent(t testing.TB, db bun.IDB, organizerID string, stock, maxPerPerson int) (*models.Event, *models.MerchandiseItem) {
	t.Helper()
	item := &models.MerchandiseItem{
		ID:           uuid.NewString(),
		Name:         "Fest Hoodie",
		BasePrice:    499,
		Stock:        stock,
		MaxPerPerson: maxPerPerson,
		Sizes:        []string{"S", "M", "L"},
	}
	ev := SeedEvent(t, db, organizerID, func(e *models.Event) {
		e.Name = "Fest Merch"
		e.Type = models.EventTypeMerchandise
		e.RegistrationLimit = 0
		e.MerchandiseItems = []*models.MerchandiseItem{item}
	})
	return ev, item
}

// SeedRegistration inserts reg after filling in the id, type and timestamps
// left empty.
func SeedRegistration(t testing.TB, db bun.IDB, reg *models.Registration) *models.Registration {
	t.Helper()
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.Type == "" {
		reg.Type = models.RegistrationNormal
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}
	reg.UpdatedAt = reg.CreatedAt
	_, err := db.NewInsert().Model(reg).Exec(context.Background())
	require.NoError(t, err)
	return reg
}

func ReloadEvent(t testing.TB, db bun.IDB, id string) *models.Event {
	t.Helper()
	var ev models.Event
	require.NoError(t, db.NewSelect().Model(&ev).Where("id = ?", id).Scan(context.Background()))
	return &ev
}

func ReloadItem(t testing.TB, db bun.IDB, id string) *models.MerchandiseItem {
	t.Helper()
	var item models.MerchandiseItem
	require.NoError(t, db.NewSelect().Model(&item).Where("id = ?", id).Scan(context.Background()))
	return &item
}

func ReloadRegistration(t testing.TB, db bun.IDB, id string) *models.Registration {
	t.Helper()
	var reg models.Registration
	require.NoError(t, db.NewSelect().Model(&reg).Where("id = ?", id).Scan(context.Background()))
	return &reg
}
