package analytics

import (
	"context"
	"fmt"

	"ms-fest/internal/auth"
)

// BatchEventAnalytics represents aggregated analytics data for multiple events
type BatchEventAnalytics struct {
	EventIDs []string `json:"event_ids"`
	Totals
	SalesByItem []ItemSalesMetrics `json:"sales_by_item"`
}

// GetBatchEventAnalytics aggregates several events into one view. Events the
// caller does not own, and unknown ids, are left out of the result.
func (s *Service) GetBatchEventAnalytics(ctx context.Context, caller auth.Identity, eventIDs []string, status string) (*BatchEventAnalytics, error) {
	statuses, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	result := &BatchEventAnalytics{EventIDs: []string{}}
	if len(eventIDs) == 0 {
		result.Totals = newTally(nil).totals()
		result.SalesByItem = []ItemSalesMetrics{}
		return result, nil
	}

	events, err := s.DB.Events(ctx, dedupe(eventIDs))
	if err != nil {
		return nil, err
	}

	t := newTally(nil)
	for _, ev := range events {
		if err := auth.Authorize(auth.OpEventAnalytics, caller, auth.Resource{OrganizerUserID: ev.OrganizerUserID()}); err != nil {
			s.Logger.Warn("ANALYTICS", fmt.Sprintf("User %s requested analytics for event %s without ownership", caller.UserID, ev.ID))
			continue
		}
		result.EventIDs = append(result.EventIDs, ev.ID)
		for _, item := range ev.MerchandiseItems {
			t.item(item.ID, item.Name).RemainingStock = item.Stock
		}
	}

	regs, err := s.DB.Registrations(ctx, result.EventIDs, statuses...)
	if err != nil {
		return nil, err
	}
	for i := range regs {
		t.add(&regs[i])
	}
	result.Totals = t.totals()
	result.SalesByItem = t.items()
	return result, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
