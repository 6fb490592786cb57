package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-fest/internal/apperr"
	"ms-fest/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun bun.IDB
}

func (d *DB) CreateOrganizer(ctx context.Context, org *models.Organizer) error {
	if _, err := d.Bun.NewInsert().Model(org).Exec(ctx); err != nil {
		return fmt.Errorf("insert organizer: %w", err)
	}
	return nil
}

func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := d.Bun.NewInsert().Model(user).Exec(ctx); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (d *DB) GetByID(ctx context.Context, id string) (*models.Organizer, error) {
	return d.getBy(ctx, "id", id)
}

// GetByUserID resolves the organizer profile of an authenticated user.
func (d *DB) GetByUserID(ctx context.Context, userID string) (*models.Organizer, error) {
	return d.getBy(ctx, "user_id", userID)
}

func (d *DB) getBy(ctx context.Context, column, value string) (*models.Organizer, error) {
	var org models.Organizer
	err := d.Bun.NewSelect().
		Model(&org).
		Where("? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrOrganizerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organizer: %w", err)
	}
	return &org, nil
}

func (d *DB) SetActive(ctx context.Context, id string, active bool) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Organizer)(nil)).
		Set("is_active = ?", active).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set organizer active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrOrganizerNotFound
	}
	return nil
}

// PurgeResult reports how many rows an organizer purge removed.
type PurgeResult struct {
	Events        int `json:"events"`
	Items         int `json:"merchandise_items"`
	Registrations int `json:"registrations"`
	AuditEntries  int `json:"audit_entries"`
}

// Purge deletes the organizer and everything hanging off its events in one
// transaction.
func (d *DB) Purge(ctx context.Context, id string) (PurgeResult, error) {
	var out PurgeResult
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := (&DB{Bun: tx}).GetByID(ctx, id); err != nil {
			return err
		}

		events := tx.NewSelect().
			Model((*models.Event)(nil)).
			Column("id").
			Where("organizer_id = ?", id)
		registrations := tx.NewSelect().
			Model((*models.Registration)(nil)).
			Column("id").
			Where("event_id IN (?)", events)

		steps := []struct {
			q   *bun.DeleteQuery
			out *int
		}{
			{tx.NewDelete().Model((*models.AttendanceAudit)(nil)).Where("registration_id IN (?)", registrations), &out.AuditEntries},
			{tx.NewDelete().Model((*models.Registration)(nil)).Where("event_id IN (?)", events), &out.Registrations},
			{tx.NewDelete().Model((*models.MerchandiseItem)(nil)).Where("event_id IN (?)", events), &out.Items},
			{tx.NewDelete().Model((*models.Event)(nil)).Where("organizer_id = ?", id), &out.Events},
			{tx.NewDelete().Model((*models.Organizer)(nil)).Where("id = ?", id), nil},
		}
		for _, step := range steps {
			res, err := step.q.Exec(ctx)
			if err != nil {
				return fmt.Errorf("purge organizer %s: %w", id, err)
			}
			if step.out != nil {
				n, _ := res.RowsAffected()
				*step.out = int(n)
			}
		}
		return nil
	})
	return out, err
}

// GetUser returns nil when the user is unknown.
func (d *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().Model(&user).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}
