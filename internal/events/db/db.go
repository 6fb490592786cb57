package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-fest/internal/apperr"
	"ms-fest/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun bun.IDB
}

// WithTx returns a DB bound to tx.
func (d *DB) WithTx(tx bun.IDB) *DB {
	return &DB{Bun: tx}
}

// CreateEvent inserts the event together with its merchandise items.
func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	if _, err := d.Bun.NewInsert().Model(event).Exec(ctx); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if len(event.MerchandiseItems) > 0 {
		if _, err := d.Bun.NewInsert().Model(&event.MerchandiseItems).Exec(ctx); err != nil {
			return fmt.Errorf("insert merchandise items: %w", err)
		}
	}
	return nil
}

// GetEvent loads the event with its organizer and merchandise items.
func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Relation("Organizer").
		Relation("MerchandiseItems").
		Where("event.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return &event, nil
}

// UpdateEvent writes the given columns; updated_at is always written.
func (d *DB) UpdateEvent(ctx context.Context, event *models.Event, columns ...string) error {
	event.UpdatedAt = time.Now().UTC()
	columns = append(columns, "updated_at")
	_, err := d.Bun.NewUpdate().
		Model(event).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update event %s: %w", event.ID, err)
	}
	return nil
}

// ReplaceItems swaps the event's merchandise items for items.
func (d *DB) ReplaceItems(ctx context.Context, eventID string, items []*models.MerchandiseItem) error {
	_, err := d.Bun.NewDelete().
		Model((*models.MerchandiseItem)(nil)).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete merchandise items of %s: %w", eventID, err)
	}
	if len(items) == 0 {
		return nil
	}
	if _, err := d.Bun.NewInsert().Model(&items).Exec(ctx); err != nil {
		return fmt.Errorf("insert merchandise items of %s: %w", eventID, err)
	}
	return nil
}

// TransitionStatus moves the event to `to` only if it is currently in one of
// `from`. It reports whether this call made the change.
func (d *DB) TransitionStatus(ctx context.Context, id string, from []models.EventStatus, to models.EventStatus, at time.Time) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from))
	if to == models.EventPublished {
		q = q.Set("published_at = ?", at)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("transition event %s to %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListDue returns events in status whose dateColumn is at or before now.
func (d *DB) ListDue(ctx context.Context, status models.EventStatus, dateColumn string, now time.Time) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("status = ?", status).
		Where("? <= ?", bun.Ident(dateColumn), now).
		Order("start_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list due %s events: %w", status, err)
	}
	return events, nil
}

func (d *DB) ListByStatus(ctx context.Context, statuses ...models.EventStatus) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("status IN (?)", bun.In(statuses)).
		Order("start_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events by status: %w", err)
	}
	return events, nil
}

type BrowseFilter struct {
	Type        models.EventType
	Eligibility string
	Limit       int
	Offset      int
}

// Browse lists events participants can see, soonest first.
func (d *DB) Browse(ctx context.Context, f BrowseFilter) ([]models.Event, error) {
	var events []models.Event
	q := d.Bun.NewSelect().
		Model(&events).
		Relation("Organizer").
		Where("event.status IN (?)", bun.In([]models.EventStatus{models.EventPublished, models.EventOngoing})).
		Order("event.start_date ASC")
	if f.Type != "" {
		q = q.Where("event.type = ?", f.Type)
	}
	if f.Eligibility != "" {
		q = q.Where("event.eligibility = ?", f.Eligibility)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("browse events: %w", err)
	}
	return events, nil
}

func (d *DB) ListByOrganizer(ctx context.Context, organizerID string) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("organizer_id = ?", organizerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizer events: %w", err)
	}
	return events, nil
}

func (d *DB) GetItem(ctx context.Context, itemID string) (*models.MerchandiseItem, error) {
	var item models.MerchandiseItem
	err := d.Bun.NewSelect().
		Model(&item).
		Where("id = ?", itemID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	return &item, nil
}
