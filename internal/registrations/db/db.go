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

func (d *DB) WithTx(tx bun.IDB) *DB {
	return &DB{Bun: tx}
}

func (d *DB) Create(ctx context.Context, reg *models.Registration) error {
	if _, err := d.Bun.NewInsert().Model(reg).Exec(ctx); err != nil {
		if IsUniqueViolation(err) {
			return apperr.ErrDuplicateRegistration.Wrap(err)
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (d *DB) selectWithRelations(reg *models.Registration) *bun.SelectQuery {
	return d.Bun.NewSelect().
		Model(reg).
		Relation("Event").
		Relation("Event.Organizer").
		Relation("Participant")
}

// Get loads the registration with its event, the event's organizer and the
// participant.
func (d *DB) Get(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	err := d.selectWithRelations(&reg).
		Where("registration.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get registration %s: %w", id, err)
	}
	return &reg, nil
}

func (d *DB) GetByTicketID(ctx context.Context, ticketID string) (*models.Registration, error) {
	var reg models.Registration
	err := d.selectWithRelations(&reg).
		Where("registration.ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get registration by ticket: %w", err)
	}
	return &reg, nil
}

func (d *DB) GetAuditLog(ctx context.Context, registrationID string) ([]models.AttendanceAudit, error) {
	var entries []models.AttendanceAudit
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("registration_id = ?", registrationID).
		Order("timestamp ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get audit log: %w", err)
	}
	return entries, nil
}

// FindActiveNormal returns the participant's live NORMAL registration for
// the event, or nil.
func (d *DB) FindActiveNormal(ctx context.Context, eventID, participantID string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("event_id = ?", eventID).
		Where("participant_id = ?", participantID).
		Where("registration_type = ?", models.RegistrationNormal).
		Where("status IN (?)", bun.In(models.ActiveStatuses)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active registration: %w", err)
	}
	return &reg, nil
}

// UpdateStatus writes reg.Status plus columns, but only while the stored
// status is still one of from. It reports whether the row was updated.
func (d *DB) UpdateStatus(ctx context.Context, reg *models.Registration, from []models.RegistrationStatus, columns ...string) (bool, error) {
	reg.UpdatedAt = time.Now().UTC()
	columns = append(columns, "status", "updated_at")
	res, err := d.Bun.NewUpdate().
		Model(reg).
		Column(columns...).
		Where("id = ?", reg.ID).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update registration %s: %w", reg.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Sweep moves every registration of the event in one of from to `to` and
// returns how many changed. Re-running it is a no-op.
func (d *DB) Sweep(ctx context.Context, eventID string, from []models.RegistrationStatus, to models.RegistrationStatus, at time.Time) (int, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("event_id = ?", eventID).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep registrations of %s to %s: %w", eventID, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// AssignTicket sets the ticket only if none is set yet. It reports whether
// this call assigned it.
func (d *DB) AssignTicket(ctx context.Context, id, ticketID, payload string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("ticket_id = ?", ticketID).
		Set("qr_payload = ?", payload).
		Set("ticket_issued_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("ticket_id IS NULL").
		Exec(ctx)
	if err != nil {
		if IsUniqueViolation(err) {
			return false, apperr.ErrTicketCollision.Wrap(err)
		}
		return false, fmt.Errorf("assign ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkAttended flips attendance on only if it was off and the registration
// may check in. It reports whether this call marked it.
func (d *DB) MarkAttended(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("attendance_marked = ?", true).
		Set("attended_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("attendance_marked = ?", false).
		Where("status IN (?)", bun.In(models.CheckInStatuses)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark attended: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetAttendance writes the attendance flag unconditionally. A zero at clears
// attended_at.
func (d *DB) SetAttendance(ctx context.Context, id string, marked bool, at time.Time) error {
	q := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("attendance_marked = ?", marked).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	if marked {
		q = q.Set("attended_at = ?", at)
	} else {
		q = q.Set("attended_at = NULL")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("set attendance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrRegistrationNotFound
	}
	return nil
}

func (d *DB) AppendAudit(ctx context.Context, entry *models.AttendanceAudit) error {
	if _, err := d.Bun.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

type ListFilter struct {
	Status models.RegistrationStatus
	Type   models.RegistrationType
}

func (d *DB) ListByParticipant(ctx context.Context, participantID string, f ListFilter) ([]models.Registration, error) {
	var regs []models.Registration
	q := d.Bun.NewSelect().
		Model(&regs).
		Relation("Event").
		Where("registration.participant_id = ?", participantID).
		Order("registration.created_at DESC")
	if f.Status != "" {
		q = q.Where("registration.status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("registration.registration_type = ?", f.Type)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list participant registrations: %w", err)
	}
	return regs, nil
}

// ListByEvent returns the event's registrations with participants, filtered
// to statuses when given.
func (d *DB) ListByEvent(ctx context.Context, eventID string, statuses ...models.RegistrationStatus) ([]models.Registration, error) {
	var regs []models.Registration
	q := d.Bun.NewSelect().
		Model(&regs).
		Relation("Participant").
		Where("registration.event_id = ?", eventID).
		Order("registration.created_at ASC")
	if len(statuses) > 0 {
		q = q.Where("registration.status IN (?)", bun.In(statuses))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list event registrations: %w", err)
	}
	return regs, nil
}

// CountByStatus counts the event's registrations per status.
func (d *DB) CountByStatus(ctx context.Context, eventID string) (map[models.RegistrationStatus]int, error) {
	var rows []struct {
		Status models.RegistrationStatus `bun:"status"`
		Count  int                       `bun:"count"`
	}
	err := d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Where("event_id = ?", eventID).
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	out := make(map[models.RegistrationStatus]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// CountAttendance counts the event's check-in eligible registrations and
// how many of them are marked present.
func (d *DB) CountAttendance(ctx context.Context, eventID string) (total int, scanned int, err error) {
	base := func() *bun.SelectQuery {
		return d.Bun.NewSelect().
			Model((*models.Registration)(nil)).
			Where("event_id = ?", eventID).
			Where("status IN (?)", bun.In(models.EligibleStatuses))
	}
	total, err = base().Count(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("count eligible registrations: %w", err)
	}
	scanned, err = base().Where("attendance_marked = ?", true).Count(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("count scanned registrations: %w", err)
	}
	return total, scanned, nil
}

// Revenue sums amount_paid over the registrations that count as paid.
func (d *DB) Revenue(ctx context.Context, eventID string) (float64, error) {
	var total sql.NullFloat64
	err := d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		ColumnExpr("SUM(amount_paid)").
		Where("event_id = ?", eventID).
		Where("status IN (?)", bun.In(models.EligibleStatuses)).
		Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("sum revenue: %w", err)
	}
	return total.Float64, nil
}

// PurgeOrphans deletes registrations whose event no longer exists and audit
// entries whose registration no longer exists.
func (d *DB) PurgeOrphans(ctx context.Context) (registrations int, audits int, err error) {
	res, err := d.Bun.NewDelete().
		Model((*models.Registration)(nil)).
		Where("event_id NOT IN (SELECT id FROM events)").
		Exec(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("purge orphan registrations: %w", err)
	}
	n, _ := res.RowsAffected()
	registrations = int(n)

	res, err = d.Bun.NewDelete().
		Model((*models.AttendanceAudit)(nil)).
		Where("registration_id NOT IN (SELECT id FROM registrations)").
		Exec(ctx)
	if err != nil {
		return registrations, 0, fmt.Errorf("purge orphan audit entries: %w", err)
	}
	n, _ = res.RowsAffected()
	return registrations, int(n), nil
}
