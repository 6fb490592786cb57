package capacity_test

import (
	"context"
	"errors"
	"testing"

	"ms-fest/internal/apperr"
	"ms-fest/internal/capacity"
	"ms-fest/internal/database/dbtest"
	"ms-fest/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveAndReleaseSeat(t *testing.T) {
	db := dbtest.NewDB(t)
	ctx := context.Background()
	ledger := capacity.NewLedger()
	org := dbtest.SeedOrganizer(t, db, "org-user", true)
	ev := dbtest.SeedEvent(t, db, org.ID, func(e *models.Event) { e.RegistrationLimit = 2 })

	require.NoError(t, ledger.ReserveSeat(ctx, db, ev.ID))
	require.NoError(t, ledger.ReserveSeat(ctx, db, ev.ID))

	err := ledger.ReserveSeat(ctx, db, ev.ID)
	assert.True(t, errors.Is(err, apperr.ErrRegistrationLimitReached))
	assert.True(t, capacity.IsExhausted(err))

	stored := dbtest.ReloadEvent(t, db, ev.ID)
	assert.Equal(t, 2, stored.RegistrationCount)
	assert.True(t, stored.IsFormLocked)

	// Releasing past zero leaves the counter at zero.
	for i := 0; i < 3; i++ {
		require.NoError(t, ledger.ReleaseSeat(ctx, db, ev.ID))
	}
	assert.Equal(t, 0, dbtest.ReloadEvent(t, db, ev.ID).RegistrationCount)
}

func TestReserveSeatZeroLimit(t *testing.T) {
	db := dbtest.NewDB(t)
	ledger := capacity.NewLedger()
	org := dbtest.SeedOrganizer(t, db, "org-user", true)
	ev := dbtest.SeedEvent(t, db, org.ID, func(e *models.Event) { e.RegistrationLimit = 0 })

	err := ledger.ReserveSeat(context.Background(), db, ev.ID)
	assert.True(t, errors.Is(err, apperr.ErrRegistrationLimitReached))
	assert.False(t, dbtest.ReloadEvent(t, db, ev.ID).IsFormLocked)
}

func TestCheckStock(t *testing.T) {
	ledger := capacity.NewLedger()
	item := &models.MerchandiseItem{Name: "Hoodie", Stock: 2, MaxPerPerson: 5}

	tests := []struct {
		name string
		qty  int
		want error
	}{
		{"within stock", 2, nil},
		{"above stock", 3, apperr.ErrInsufficientStock},
		{"above per-person cap", 6, apperr.ErrMaxPerPersonExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.CheckStock(item, tt.qty)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestReserveAndReleaseStock(t *testing.T) {
	db := dbtest.NewDB(t)
	ctx := context.Background()
	ledger := capacity.NewLedger()
	org := dbtest.SeedOrganizer(t, db, "org-user", true)
	_, item := dbtest.SeedMerchEvent(t, db, org.ID, 3, 5)

	require.NoError(t, ledger.ReserveStock(ctx, db, item.ID, 2))
	assert.Equal(t, 1, dbtest.ReloadItem(t, db, item.ID).Stock)

	err := ledger.ReserveStock(ctx, db, item.ID, 2)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))
	assert.Equal(t, 1, dbtest.ReloadItem(t, db, item.ID).Stock)

	err = ledger.ReserveStock(ctx, db, item.ID, 0)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	require.NoError(t, ledger.ReleaseStock(ctx, db, item.ID, 2))
	assert.Equal(t, 3, dbtest.ReloadItem(t, db, item.ID).Stock)

	// Reservations inside a rolled back transaction leave no trace.
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, ledger.ReserveStock(ctx, tx, item.ID, 3))
	require.NoError(t, tx.Rollback())
	assert.Equal(t, 3, dbtest.ReloadItem(t, db, item.ID).Stock)
}
