// Package attendance records gate check-ins and manual corrections and
// serves the live tallies organizers watch during an event.
package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-fest/internal/apperr"
	"ms-fest/internal/auth"
	eventdb "ms-fest/internal/events/db"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	regdb "ms-fest/internal/registrations/db"
	"ms-fest/internal/sse"
	tickets "ms-fest/internal/tickets/service"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Outcome string

const (
	OutcomeMarked    Outcome = "MARKED"
	OutcomeDuplicate Outcome = "DUPLICATE"
)

const (
	defaultMarkReason   = "Manually marked by organizer"
	defaultUnmarkReason = "Manually unmarked by organizer"
)

// Attendee is the participant projection used in scan results and reports.
type Attendee struct {
	RegistrationID string     `json:"registration_id"`
	ParticipantID  string     `json:"participant_id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	TicketID       string     `json:"ticket_id"`
	AttendedAt     *time.Time `json:"attended_at,omitempty"`
}

type ScanResult struct {
	Outcome    Outcome                `json:"outcome"`
	AttendedAt time.Time              `json:"attended_at"`
	Attendee   Attendee               `json:"attendee"`
	Stats      models.AttendanceStats `json:"stats"`
}

type OverrideResult struct {
	Registration *models.Registration  `json:"registration"`
	Entry        models.AttendanceAudit `json:"audit_entry"`
	Stats        models.AttendanceStats `json:"stats"`
}

// Report is the full attendance picture of one event.
type Report struct {
	models.AttendanceStats
	ScannedList    []Attendee `json:"scanned_list"`
	NotScannedList []Attendee `json:"not_scanned_list"`
}

type Service struct {
	DB            *bun.DB
	Registrations *regdb.DB
	Events        *eventdb.DB
	Issuer        *tickets.Issuer
	Cache         StatsCache
	Stream        *sse.AttendanceEmitter
	Logger        *logger.Logger
	Now           func() time.Time
}

func NewService(db *bun.DB, issuer *tickets.Issuer, cache StatsCache, stream *sse.AttendanceEmitter, log *logger.Logger) *Service {
	if cache == nil {
		cache = NoCache{}
	}
	return &Service{
		DB:            db,
		Registrations: &regdb.DB{Bun: db},
		Events:        &eventdb.DB{Bun: db},
		Issuer:        issuer,
		Cache:         cache,
		Stream:        stream,
		Logger:        log,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// Scan checks a ticket in at the gate. Scanning an already checked-in ticket
// is a DUPLICATE result carrying the original check-in time, not an error.
func (s *Service) Scan(ctx context.Context, caller auth.Identity, payload string) (*ScanResult, error) {
	reg, err := s.Issuer.Resolve(ctx, s.DB, payload)
	if err != nil {
		if apperr.IsNotFound(err) {
			s.Logger.LogSecurity("SCAN_UNKNOWN", fmt.Sprintf("organizer %s scanned an unknown ticket", caller.UserID))
		}
		return nil, err
	}
	if err := auth.Authorize(auth.OpScanTicket, caller, eventResource(reg)); err != nil {
		s.Logger.LogSecurity("SCAN_DENIED", fmt.Sprintf("%s scanned ticket %s of a foreign event", caller.UserID, reg.TicketID))
		return nil, err
	}
	if st := reg.Event.Status; st != models.EventPublished && st != models.EventOngoing {
		return nil, apperr.ErrAttendanceNotOpen.WithMessage("event is %s; attendance can only be marked for published or ongoing events", st)
	}
	if !models.StatusIn(reg.Status, models.CheckInStatuses) {
		return nil, apperr.ErrTicketNotCheckable.WithMessage("registration is %s and cannot check in", reg.Status)
	}
	if reg.AttendanceMarked {
		return s.duplicate(ctx, reg)
	}

	at := s.Now()
	var marked bool
	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		regs := s.Registrations.WithTx(tx)
		var err error
		marked, err = regs.MarkAttended(ctx, reg.ID, at)
		if err != nil || !marked {
			return err
		}
		return regs.AppendAudit(ctx, &models.AttendanceAudit{
			ID:             uuid.NewString(),
			RegistrationID: reg.ID,
			Action:         models.AuditMarked,
			Timestamp:      at,
			Actor:          caller.UserID,
		})
	})
	if err != nil {
		return nil, err
	}
	if !marked {
		// Lost a race with another scanner or a status change.
		current, err := s.Registrations.Get(ctx, reg.ID)
		if err != nil {
			return nil, err
		}
		if current.AttendanceMarked {
			return s.duplicate(ctx, current)
		}
		return nil, apperr.ErrTicketNotCheckable.WithMessage("registration is %s and cannot check in", current.Status)
	}

	reg.AttendanceMarked, reg.AttendedAt = true, at
	s.Logger.LogAttendance("SCAN", reg.TicketID, fmt.Sprintf("checked in by %s", caller.UserID))
	stats, err := s.refresh(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	return &ScanResult{Outcome: OutcomeMarked, AttendedAt: at, Attendee: attendeeOf(reg), Stats: stats}, nil
}

func (s *Service) duplicate(ctx context.Context, reg *models.Registration) (*ScanResult, error) {
	s.Logger.LogAttendance("DUPLICATE", reg.TicketID, fmt.Sprintf("already checked in at %s", reg.AttendedAt.Format(time.RFC3339)))
	stats, err := s.counts(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	return &ScanResult{Outcome: OutcomeDuplicate, AttendedAt: reg.AttendedAt, Attendee: attendeeOf(reg), Stats: stats}, nil
}

// ManualOverride sets attendance to the requested value whatever its
// current state, and records the correction.
func (s *Service) ManualOverride(ctx context.Context, caller auth.Identity, registrationID string, attended bool, reason string) (*OverrideResult, error) {
	reg, err := s.Registrations.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpOverrideAttend, caller, eventResource(reg)); err != nil {
		return nil, err
	}

	entry := models.AttendanceAudit{
		ID:             uuid.NewString(),
		RegistrationID: reg.ID,
		Action:         models.AuditManualOverride,
		Timestamp:      s.Now(),
		Actor:          caller.UserID,
		Reason:         strings.TrimSpace(reason),
	}
	if !attended {
		entry.Action = models.AuditUnmarked
	}
	if entry.Reason == "" {
		entry.Reason = defaultMarkReason
		if !attended {
			entry.Reason = defaultUnmarkReason
		}
	}

	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		regs := s.Registrations.WithTx(tx)
		if err := regs.SetAttendance(ctx, reg.ID, attended, entry.Timestamp); err != nil {
			return err
		}
		return regs.AppendAudit(ctx, &entry)
	})
	if err != nil {
		return nil, err
	}

	reg.AttendanceMarked = attended
	reg.AttendedAt = time.Time{}
	if attended {
		reg.AttendedAt = entry.Timestamp
	}
	s.Logger.LogAttendance(string(entry.Action), reg.ID, fmt.Sprintf("by %s: %s", caller.UserID, entry.Reason))

	stats, err := s.refresh(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	return &OverrideResult{Registration: reg, Entry: entry, Stats: stats}, nil
}

// Stats returns the counts and both participant lists of an event.
func (s *Service) Stats(ctx context.Context, caller auth.Identity, eventID string) (*Report, error) {
	ev, err := s.authorizeEvent(ctx, auth.OpAttendanceStats, caller, eventID)
	if err != nil {
		return nil, err
	}
	regs, err := s.Registrations.ListByEvent(ctx, ev.ID, models.EligibleStatuses...)
	if err != nil {
		return nil, err
	}

	report := &Report{
		AttendanceStats: models.AttendanceStats{EventID: ev.ID, UpdatedAt: s.Now()},
		ScannedList:     []Attendee{},
		NotScannedList:  []Attendee{},
	}
	for i := range regs {
		a := attendeeOf(&regs[i])
		if regs[i].AttendanceMarked {
			report.ScannedList = append(report.ScannedList, a)
		} else {
			report.NotScannedList = append(report.NotScannedList, a)
		}
	}
	report.Total = len(regs)
	report.Scanned = len(report.ScannedList)
	report.NotScanned = len(report.NotScannedList)
	s.Cache.Set(ctx, report.AttendanceStats)
	return report, nil
}

// Counts returns the cached tally of an event, for the live stream.
func (s *Service) Counts(ctx context.Context, caller auth.Identity, eventID string) (models.AttendanceStats, error) {
	if _, err := s.authorizeEvent(ctx, auth.OpAttendanceStats, caller, eventID); err != nil {
		return models.AttendanceStats{}, err
	}
	return s.counts(ctx, eventID)
}

// EligibleForExport returns the event's eligible registrations for the
// attendance CSV.
func (s *Service) EligibleForExport(ctx context.Context, caller auth.Identity, eventID string) (*models.Event, []models.Registration, error) {
	ev, err := s.authorizeEvent(ctx, auth.OpExportAttendance, caller, eventID)
	if err != nil {
		return nil, nil, err
	}
	regs, err := s.Registrations.ListByEvent(ctx, ev.ID, models.EligibleStatuses...)
	if err != nil {
		return nil, nil, err
	}
	return ev, regs, nil
}

func (s *Service) authorizeEvent(ctx context.Context, op auth.Operation, caller auth.Identity, eventID string) (*models.Event, error) {
	ev, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(op, caller, auth.Resource{OrganizerUserID: ev.OrganizerUserID()}); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *Service) counts(ctx context.Context, eventID string) (models.AttendanceStats, error) {
	if stats, ok := s.Cache.Get(ctx, eventID); ok {
		return stats, nil
	}
	total, scanned, err := s.Registrations.CountAttendance(ctx, eventID)
	if err != nil {
		return models.AttendanceStats{}, err
	}
	stats := models.AttendanceStats{
		EventID:    eventID,
		Total:      total,
		Scanned:    scanned,
		NotScanned: total - scanned,
		UpdatedAt:  s.Now(),
	}
	s.Cache.Set(ctx, stats)
	return stats, nil
}

// RefreshStats recounts an event after registrations joined or left the
// eligible set elsewhere and pushes the result to live subscribers.
func (s *Service) RefreshStats(ctx context.Context, eventID string) {
	if _, err := s.refresh(ctx, eventID); err != nil {
		s.Logger.Warn("ATTENDANCE", fmt.Sprintf("Failed to refresh stats for %s: %v", eventID, err))
	}
}

// refresh drops the cached tally after a change, recounts and pushes the new
// numbers to live subscribers.
func (s *Service) refresh(ctx context.Context, eventID string) (models.AttendanceStats, error) {
	s.Cache.Invalidate(ctx, eventID)
	stats, err := s.counts(ctx, eventID)
	if err != nil {
		return stats, err
	}
	if s.Stream != nil {
		s.Stream.Emit(stats)
	}
	return stats, nil
}

func eventResource(reg *models.Registration) auth.Resource {
	if reg.Event == nil {
		return auth.Resource{}
	}
	return auth.Resource{OrganizerUserID: reg.Event.OrganizerUserID()}
}

func attendeeOf(reg *models.Registration) Attendee {
	a := Attendee{
		RegistrationID: reg.ID,
		ParticipantID:  reg.ParticipantID,
		TicketID:       reg.TicketID,
	}
	if !reg.AttendedAt.IsZero() {
		at := reg.AttendedAt
		a.AttendedAt = &at
	}
	if reg.Participant != nil {
		a.Name = reg.Participant.FullName()
		a.Email = reg.Participant.Email
	}
	return a
}
