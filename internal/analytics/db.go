package analytics

import (
	"context"
	"fmt"

	"ms-fest/internal/models"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations
type DB struct {
	Bun bun.IDB
}

// Registrations loads every registration of the given events, optionally
// restricted to a set of statuses.
func (d *DB) Registrations(ctx context.Context, eventIDs []string, statuses ...models.RegistrationStatus) ([]models.Registration, error) {
	var regs []models.Registration
	if len(eventIDs) == 0 {
		return regs, nil
	}
	q := d.Bun.NewSelect().
		Model(&regs).
		ExcludeColumn("form_responses", "qr_payload").
		Where("event_id IN (?)", bun.In(eventIDs)).
		Order("created_at ASC")
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("load registrations for analytics: %w", err)
	}
	return regs, nil
}

// Events loads the given events with their organizer and merchandise items.
// Unknown ids are skipped.
func (d *DB) Events(ctx context.Context, ids []string) ([]models.Event, error) {
	var events []models.Event
	if len(ids) == 0 {
		return events, nil
	}
	err := d.Bun.NewSelect().
		Model(&events).
		Relation("Organizer").
		Relation("MerchandiseItems").
		Where("event.id IN (?)", bun.In(ids)).
		Order("event.start_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events for analytics: %w", err)
	}
	return events, nil
}

// OrganizerEventIDs lists the ids of every event the organizer owns.
func (d *DB) OrganizerEventIDs(ctx context.Context, organizerID string) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		Column("id").
		Where("organizer_id = ?", organizerID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list organizer event ids: %w", err)
	}
	return ids, nil
}
