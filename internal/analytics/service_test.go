package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-fest/internal/analytics"
	"ms-fest/internal/apperr"
	"ms-fest/internal/auth"
	"ms-fest/internal/database/dbtest"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var organizer = auth.Identity{UserID: "org-user", Role: auth.RoleOrganizer}

type fixture struct {
	db    *bun.DB
	svc   *analytics.Service
	orgID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.NewDB(t)
	org := dbtest.SeedOrganizer(t, db, organizer.UserID, true)
	return &fixture{db: db, svc: analytics.NewService(db, logger.NewNopLogger()), orgID: org.ID}
}

func day(d int) time.Time {
	return time.Date(2026, 2, d, 10, 0, 0, 0, time.UTC)
}

func TestEventAnalyticsForMerchandise(t *testing.T) {
	f := newFixture(t)
	ev, hoodie := dbtest.SeedMerchEvent(t, f.db, f.orgID, 20, 5)

	order := func(p string, status models.RegistrationStatus, qty int, at time.Time, attended bool) {
		dbtest.SeedRegistration(t, f.db, &models.Registration{
			EventID:       ev.ID,
			ParticipantID: p,
			Type:          models.RegistrationMerchandise,
			Status:        status,
			Merchandise: models.MerchandiseSelection{
				ItemID: hoodie.ID, ItemName: hoodie.Name, UnitPrice: hoodie.BasePrice, Quantity: qty,
			},
			AmountPaid:       hoodie.BasePrice * float64(qty),
			AttendanceMarked: attended,
			CreatedAt:        at,
		})
	}
	order("p1", models.RegistrationApproved, 2, day(1), true)
	order("p2", models.RegistrationApproved, 1, day(1), false)
	order("p3", models.RegistrationPending, 3, day(2), false)
	order("p4", models.RegistrationRejected, 1, day(3), false)

	res, err := f.svc.GetEventAnalytics(context.Background(), organizer, ev.ID, "")
	require.NoError(t, err)

	assert.Equal(t, ev.ID, res.EventID)
	assert.Equal(t, 4, res.TotalRegistrations)
	// Pending and rejected orders are not revenue.
	assert.InDelta(t, 3*499.0, res.TotalRevenue, 0.001)
	assert.Equal(t, 3, res.UnitsSold)
	assert.Equal(t, 2, res.ByStatus[models.RegistrationApproved])
	assert.Equal(t, 1, res.ByStatus[models.RegistrationPending])
	assert.Equal(t, 2, res.Eligible)
	assert.Equal(t, 1, res.Attended)
	assert.InDelta(t, 0.5, res.AttendanceRate, 0.0001)

	require.Len(t, res.DailyRegistrations, 3)
	assert.Equal(t, "2026-02-01", res.DailyRegistrations[0].Date)
	assert.Equal(t, 2, res.DailyRegistrations[0].Registrations)
	assert.InDelta(t, 3*499.0, res.DailyRegistrations[0].Revenue, 0.001)
	assert.Equal(t, "2026-02-03", res.DailyRegistrations[2].Date)
	assert.Zero(t, res.DailyRegistrations[2].Revenue)

	require.Len(t, res.SalesByItem, 1)
	assert.Equal(t, hoodie.ID, res.SalesByItem[0].ItemID)
	assert.Equal(t, 3, res.SalesByItem[0].UnitsSold)
	assert.Equal(t, 20, res.SalesByItem[0].RemainingStock)

	// Test case: status filter narrows the rows considered
	pending, err := f.svc.GetEventAnalytics(context.Background(), organizer, ev.ID, "PENDING")
	require.NoError(t, err)
	assert.Equal(t, 1, pending.TotalRegistrations)
	assert.Zero(t, pending.TotalRevenue)
}

func TestEventAnalyticsRejections(t *testing.T) {
	f := newFixture(t)
	ev := dbtest.SeedEvent(t, f.db, f.orgID, nil)
	ctx := context.Background()

	// Test case 1: someone else's event
	_, err := f.svc.GetEventAnalytics(ctx, auth.Identity{UserID: "other", Role: auth.RoleOrganizer}, ev.ID, "")
	assert.True(t, errors.Is(err, apperr.ErrNotAuthorized))

	// Test case 2: participants have no analytics
	_, err = f.svc.GetEventAnalytics(ctx, auth.Identity{UserID: "p1", Role: auth.RoleParticipant}, ev.ID, "")
	assert.True(t, errors.Is(err, apperr.ErrNotAuthorized))

	// Test case 3: unknown status filter
	_, err = f.svc.GetEventAnalytics(ctx, organizer, ev.ID, "PAID")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	// Test case 4: unknown event
	_, err = f.svc.GetEventAnalytics(ctx, organizer, "missing", "")
	assert.True(t, apperr.IsNotFound(err))
}

func TestOrganizerAnalytics(t *testing.T) {
	f := newFixture(t)
	paid := dbtest.SeedEvent(t, f.db, f.orgID, func(e *models.Event) { e.RegistrationFee = 100 })
	free := dbtest.SeedEvent(t, f.db, f.orgID, func(e *models.Event) { e.Name = "Open Mic" })

	foreignOrg := dbtest.SeedOrganizer(t, f.db, "other-org", true)
	foreign := dbtest.SeedEvent(t, f.db, foreignOrg.ID, nil)

	dbtest.SeedRegistration(t, f.db, &models.Registration{EventID: paid.ID, ParticipantID: "p1", Status: models.RegistrationRegistered, AmountPaid: 100, AttendanceMarked: true})
	dbtest.SeedRegistration(t, f.db, &models.Registration{EventID: paid.ID, ParticipantID: "p2", Status: models.RegistrationCancelled, AmountPaid: 100})
	dbtest.SeedRegistration(t, f.db, &models.Registration{EventID: free.ID, ParticipantID: "p1", Status: models.RegistrationRegistered})
	dbtest.SeedRegistration(t, f.db, &models.Registration{EventID: foreign.ID, ParticipantID: "p1", Status: models.RegistrationRegistered, AmountPaid: 999})

	res, err := f.svc.GetOrganizerAnalytics(context.Background(), organizer, "")
	require.NoError(t, err)
	assert.Equal(t, f.orgID, res.OrganizerID)
	assert.Equal(t, 2, res.EventCount)
	assert.Equal(t, 3, res.TotalRegistrations)
	assert.InDelta(t, 100.0, res.TotalRevenue, 0.001)
	assert.InDelta(t, 0.5, res.AttendanceRate, 0.0001)

	require.Len(t, res.Events, 2)
	byID := map[string]analytics.EventBreakdown{}
	for _, line := range res.Events {
		byID[line.EventID] = line
	}
	assert.Equal(t, 2, byID[paid.ID].Registrations)
	assert.InDelta(t, 1.0, byID[paid.ID].AttendanceRate, 0.0001)
	assert.Equal(t, 1, byID[free.ID].Registrations)

	// Test case: admins are not organizers
	_, err = f.svc.GetOrganizerAnalytics(context.Background(), auth.Identity{UserID: "root", Role: auth.RoleAdmin}, "")
	assert.True(t, errors.Is(err, apperr.ErrNotAuthorized))
}

func TestBatchEventAnalyticsSkipsForeignEvents(t *testing.T) {
	f := newFixture(t)
	mine := dbtest.SeedEvent(t, f.db, f.orgID, nil)
	foreignOrg := dbtest.SeedOrganizer(t, f.db, "other-org", true)
	foreign := dbtest.SeedEvent(t, f.db, foreignOrg.ID, nil)

	dbtest.SeedRegistration(t, f.db, &models.Registration{EventID: mine.ID, ParticipantID: "p1", Status: models.RegistrationRegistered, AmountPaid: 50})
	dbtest.SeedRegistration(t, f.db, &models.Registration{EventID: foreign.ID, ParticipantID: "p1", Status: models.RegistrationRegistered, AmountPaid: 70})

	res, err := f.svc.GetBatchEventAnalytics(context.Background(), organizer, []string{mine.ID, foreign.ID, mine.ID, "missing"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, res.EventIDs)
	assert.Equal(t, 1, res.TotalRegistrations)
	assert.InDelta(t, 50.0, res.TotalRevenue, 0.001)

	empty, err := f.svc.GetBatchEventAnalytics(context.Background(), organizer, nil, "")
	require.NoError(t, err)
	assert.Empty(t, empty.EventIDs)
	assert.Zero(t, empty.TotalRegistrations)
}

func TestEventOrders(t *testing.T) {
	f := newFixture(t)
	ev, hoodie := dbtest.SeedMerchEvent(t, f.db, f.orgID, 20, 5)
	for i, p := range []string{"p1", "p2", "p3"} {
		dbtest.SeedUser(t, f.db, p, "participant")
		status := models.RegistrationPending
		if i == 1 {
			status = models.RegistrationApproved
		}
		dbtest.SeedRegistration(t, f.db, &models.Registration{
			EventID:       ev.ID,
			ParticipantID: p,
			Type:          models.RegistrationMerchandise,
			Status:        status,
			Merchandise:   models.MerchandiseSelection{ItemID: hoodie.ID, ItemName: hoodie.Name, Quantity: i + 1},
			AmountPaid:    hoodie.BasePrice * float64(i+1),
			CreatedAt:     day(i + 1),
		})
	}
	ctx := context.Background()

	// Test case 1: default order is newest first
	orders, err := f.svc.GetEventOrders(ctx, organizer, ev.ID, analytics.EventOrderOptions{})
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, "p3", orders[0].ParticipantID)
	require.NotNil(t, orders[0].Participant)
	assert.Equal(t, "p3@fest.test", orders[0].Participant.Email)

	// Test case 2: sort by amount ascending with paging
	orders, err = f.svc.GetEventOrders(ctx, organizer, ev.ID, analytics.EventOrderOptions{SortBy: "amount", Limit: 2})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "p1", orders[0].ParticipantID)
	assert.Equal(t, "p2", orders[1].ParticipantID)

	// Test case 3: status filter
	orders, err = f.svc.GetEventOrders(ctx, organizer, ev.ID, analytics.EventOrderOptions{Status: "APPROVED"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "p2", orders[0].ParticipantID)

	// Test case 4: item filter with an unknown item
	orders, err = f.svc.GetEventOrders(ctx, organizer, ev.ID, analytics.EventOrderOptions{ItemID: "nope"})
	require.NoError(t, err)
	assert.Empty(t, orders)
}
