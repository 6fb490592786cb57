package database

import (
	"context"
	"fmt"

	"ms-fest/internal/models"

	"github.com/uptrace/bun"
)

// Models in foreign-key order.
var Models = []interface{}{
	(*models.User)(nil),
	(*models.Organizer)(nil),
	(*models.Event)(nil),
	(*models.MerchandiseItem)(nil),
	(*models.Registration)(nil),
	(*models.AttendanceAudit)(nil),
	(*models.OutboxMessage)(nil),
}

var indexes = []string{
	// At most one active NORMAL registration per (event, participant).
	`CREATE UNIQUE INDEX IF NOT EXISTS registrations_active_normal_uq
		ON registrations (event_id, participant_id)
		WHERE registration_type = 'NORMAL' AND status NOT IN ('CANCELLED', 'REJECTED')`,
	`CREATE INDEX IF NOT EXISTS registrations_event_status_idx ON registrations (event_id, status)`,
	`CREATE INDEX IF NOT EXISTS registrations_participant_idx ON registrations (participant_id)`,
	`CREATE INDEX IF NOT EXISTS events_status_start_idx ON events (status, start_date)`,
	`CREATE INDEX IF NOT EXISTS merchandise_items_event_idx ON merchandise_items (event_id)`,
	`CREATE INDEX IF NOT EXISTS attendance_audit_registration_idx ON attendance_audit (registration_id)`,
	`CREATE INDEX IF NOT EXISTS notification_outbox_status_idx ON notification_outbox (status, created_at)`,
}

// CreateSchema builds the tables straight from the bun models for the sqlite
// test databases. Postgres is migrated from the SQL files under migrations/.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
