package analytics

import (
	"context"

	"ms-fest/internal/auth"
	"ms-fest/internal/models"
)

// OrganizerAnalytics represents aggregated analytics data for all events of
// one organizer
type OrganizerAnalytics struct {
	OrganizerID   string `json:"organizer_id"`
	OrganizerName string `json:"organizer_name"`
	EventCount    int    `json:"event_count"`
	Totals
	Events []EventBreakdown `json:"events"`
}

// EventBreakdown is one event's line in the organizer view.
type EventBreakdown struct {
	EventID        string             `json:"event_id"`
	Name           string             `json:"name"`
	Type           models.EventType   `json:"type"`
	Status         models.EventStatus `json:"status"`
	Registrations  int                `json:"registrations"`
	Revenue        float64            `json:"revenue"`
	AttendanceRate float64            `json:"attendance_rate"`
}

// GetOrganizerAnalytics returns analytics across every event owned by the
// caller's organizer profile.
func (s *Service) GetOrganizerAnalytics(ctx context.Context, caller auth.Identity, status string) (*OrganizerAnalytics, error) {
	if err := auth.Authorize(auth.OpOrganizerAnalytics, caller, auth.Resource{}); err != nil {
		return nil, err
	}
	statuses, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	org, err := s.Organizers.GetByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	ids, err := s.DB.OrganizerEventIDs(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	events, err := s.DB.Events(ctx, ids)
	if err != nil {
		return nil, err
	}
	regs, err := s.DB.Registrations(ctx, ids, statuses...)
	if err != nil {
		return nil, err
	}

	perEvent := make(map[string]*tally, len(events))
	overall := newTally(nil)
	for i := range regs {
		reg := &regs[i]
		overall.add(reg)
		t, ok := perEvent[reg.EventID]
		if !ok {
			t = newTally(nil)
			perEvent[reg.EventID] = t
		}
		t.add(reg)
	}

	out := &OrganizerAnalytics{
		OrganizerID:   org.ID,
		OrganizerName: org.Name,
		EventCount:    len(events),
		Totals:        overall.totals(),
		Events:        make([]EventBreakdown, 0, len(events)),
	}
	for _, ev := range events {
		line := EventBreakdown{EventID: ev.ID, Name: ev.Name, Type: ev.Type, Status: ev.Status}
		if t, ok := perEvent[ev.ID]; ok {
			totals := t.totals()
			line.Registrations = totals.TotalRegistrations
			line.Revenue = totals.TotalRevenue
			line.AttendanceRate = totals.AttendanceRate
		}
		out.Events = append(out.Events, line)
	}
	return out, nil
}
