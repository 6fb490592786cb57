// Package capacity owns the two hot counters: an event's consumed seats and
// each merchandise item's remaining stock. Every mutation is a single
// conditional UPDATE, so concurrent reservations for the last unit cannot
// both succeed, and each call joins the caller's transaction.
package capacity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-fest/internal/apperr"
	"ms-fest/internal/models"

	"github.com/uptrace/bun"
)

type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// ReserveSeat consumes one seat of a NORMAL event and locks its form schema.
func (l *Ledger) ReserveSeat(ctx context.Context, db bun.IDB, eventID string) error {
	res, err := db.NewUpdate().
		Model((*models.Event)(nil)).
		Set("registration_count = registration_count + 1").
		Set("is_form_locked = ?", true).
		Where("id = ?", eventID).
		Where("registration_count < registration_limit").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reserve seat: %w", err)
	}
	return expectOne(res, apperr.ErrRegistrationLimitReached)
}

// ReleaseSeat gives a seat back. The counter never drops below zero.
func (l *Ledger) ReleaseSeat(ctx context.Context, db bun.IDB, eventID string) error {
	_, err := db.NewUpdate().
		Model((*models.Event)(nil)).
		Set("registration_count = registration_count - 1").
		Where("id = ?", eventID).
		Where("registration_count > 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}

// CheckStock answers whether an order of qty units could be served now
// without reserving anything.
func (l *Ledger) CheckStock(item *models.MerchandiseItem, qty int) error {
	if qty > item.MaxPerPerson {
		return apperr.ErrMaxPerPersonExceeded.WithMessage(
			"quantity for %s exceeds per-person maximum of %d", item.Name, item.MaxPerPerson)
	}
	if item.Stock < qty {
		return apperr.ErrInsufficientStock.WithMessage(
			"insufficient stock for %s: available %d", item.Name, item.Stock)
	}
	return nil
}

// ReserveStock decrements stock by qty only if that many units remain.
func (l *Ledger) ReserveStock(ctx context.Context, db bun.IDB, itemID string, qty int) error {
	if qty <= 0 {
		return apperr.Validationf("quantity must be positive")
	}
	res, err := db.NewUpdate().
		Model((*models.MerchandiseItem)(nil)).
		Set("stock = stock - ?", qty).
		Where("id = ?", itemID).
		Where("stock >= ?", qty).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	return expectOne(res, apperr.ErrInsufficientStock)
}

func (l *Ledger) ReleaseStock(ctx context.Context, db bun.IDB, itemID string, qty int) error {
	if qty <= 0 {
		return nil
	}
	_, err := db.NewUpdate().
		Model((*models.MerchandiseItem)(nil)).
		Set("stock = stock + ?", qty).
		Where("id = ?", itemID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}

func expectOne(res sql.Result, onZero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return onZero
	}
	return nil
}

// IsExhausted reports whether err means the counter had no room.
func IsExhausted(err error) bool {
	return errors.Is(err, apperr.ErrRegistrationLimitReached) || errors.Is(err, apperr.ErrInsufficientStock)
}
