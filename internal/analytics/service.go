// Package analytics aggregates registrations into revenue, sales and
// attendance figures for organizers.
package analytics

import (
	"context"
	"sort"

	"ms-fest/internal/apperr"
	"ms-fest/internal/auth"
	eventdb "ms-fest/internal/events/db"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	orgdb "ms-fest/internal/organizers/db"

	"github.com/uptrace/bun"
)

const dateLayout = "2006-01-02"

// Service handles analytics operations
type Service struct {
	DB         *DB
	Events     *eventdb.DB
	Organizers *orgdb.DB
	Logger     *logger.Logger
}

// NewService creates a new analytics service
func NewService(db *bun.DB, log *logger.Logger) *Service {
	return &Service{
		DB:         &DB{Bun: db},
		Events:     &eventdb.DB{Bun: db},
		Organizers: &orgdb.DB{Bun: db},
		Logger:     log,
	}
}

// EventAnalytics represents aggregated analytics data for an event
type EventAnalytics struct {
	EventID   string           `json:"event_id"`
	EventName string           `json:"event_name"`
	EventType models.EventType `json:"event_type"`
	Totals
	SalesByItem []ItemSalesMetrics `json:"sales_by_item"`
}

// Totals are the figures shared by every analytics view. Revenue, units
// and attendance only count paid registrations (REGISTERED, APPROVED,
// COMPLETED).
type Totals struct {
	TotalRevenue       float64                           `json:"total_revenue"`
	TotalRegistrations int                               `json:"total_registrations"`
	UnitsSold          int                               `json:"units_sold"`
	ByStatus           map[models.RegistrationStatus]int `json:"by_status"`
	Eligible           int                               `json:"eligible"`
	Attended           int                               `json:"attended"`
	AttendanceRate     float64                           `json:"attendance_rate"`
	DailyRegistrations []DailyMetrics                    `json:"daily_registrations"`
}

// DailyMetrics contains metrics for a single day
type DailyMetrics struct {
	Date          string  `json:"date"`
	Registrations int     `json:"registrations"`
	Revenue       float64 `json:"revenue"`
}

// ItemSalesMetrics contains sales metrics for one merchandise item
type ItemSalesMetrics struct {
	ItemID         string  `json:"item_id"`
	ItemName       string  `json:"item_name"`
	UnitsSold      int     `json:"units_sold"`
	Revenue        float64 `json:"revenue"`
	RemainingStock int     `json:"remaining_stock"`
}

// GetEventAnalytics returns revenue, sales and attendance analytics for one
// event. A non-empty status restricts the registrations considered.
func (s *Service) GetEventAnalytics(ctx context.Context, caller auth.Identity, eventID string, status string) (*EventAnalytics, error) {
	statuses, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	ev, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpEventAnalytics, caller, auth.Resource{OrganizerUserID: ev.OrganizerUserID()}); err != nil {
		return nil, err
	}

	regs, err := s.DB.Registrations(ctx, []string{ev.ID}, statuses...)
	if err != nil {
		return nil, err
	}

	t := newTally(ev.MerchandiseItems)
	for i := range regs {
		t.add(&regs[i])
	}
	return &EventAnalytics{
		EventID:     ev.ID,
		EventName:   ev.Name,
		EventType:   ev.Type,
		Totals:      t.totals(),
		SalesByItem: t.items(),
	}, nil
}

func parseStatus(status string) ([]models.RegistrationStatus, error) {
	if status == "" {
		return nil, nil
	}
	st := models.RegistrationStatus(status)
	if !st.Valid() {
		return nil, apperr.Validationf("unknown registration status %q", status)
	}
	return []models.RegistrationStatus{st}, nil
}

// tally folds registrations into Totals and per-item sales.
type tally struct {
	t        Totals
	daily    map[string]*DailyMetrics
	byItem   map[string]*ItemSalesMetrics
	itemKeys []string
}

func newTally(items []*models.MerchandiseItem) *tally {
	t := &tally{
		t:      Totals{ByStatus: map[models.RegistrationStatus]int{}},
		daily:  map[string]*DailyMetrics{},
		byItem: map[string]*ItemSalesMetrics{},
	}
	for _, item := range items {
		t.item(item.ID, item.Name).RemainingStock = item.Stock
	}
	return t
}

func (t *tally) item(id, name string) *ItemSalesMetrics {
	m, ok := t.byItem[id]
	if !ok {
		m = &ItemSalesMetrics{ItemID: id, ItemName: name}
		t.byItem[id] = m
		t.itemKeys = append(t.itemKeys, id)
	}
	return m
}

func (t *tally) add(reg *models.Registration) {
	t.t.TotalRegistrations++
	t.t.ByStatus[reg.Status]++

	day := reg.CreatedAt.UTC().Format(dateLayout)
	d, ok := t.daily[day]
	if !ok {
		d = &DailyMetrics{Date: day}
		t.daily[day] = d
	}
	d.Registrations++

	if !models.StatusIn(reg.Status, models.EligibleStatuses) {
		return
	}
	t.t.TotalRevenue += reg.AmountPaid
	d.Revenue += reg.AmountPaid
	t.t.Eligible++
	if reg.AttendanceMarked {
		t.t.Attended++
	}
	if reg.Type == models.RegistrationMerchandise && reg.Merchandise.ItemID != "" {
		m := t.item(reg.Merchandise.ItemID, reg.Merchandise.ItemName)
		m.UnitsSold += reg.Merchandise.Quantity
		m.Revenue += reg.AmountPaid
		t.t.UnitsSold += reg.Merchandise.Quantity
	}
}

func (t *tally) totals() Totals {
	out := t.t
	if out.Eligible > 0 {
		out.AttendanceRate = float64(out.Attended) / float64(out.Eligible)
	}
	out.DailyRegistrations = make([]DailyMetrics, 0, len(t.daily))
	for _, d := range t.daily {
		out.DailyRegistrations = append(out.DailyRegistrations, *d)
	}
	sort.Slice(out.DailyRegistrations, func(i, j int) bool {
		return out.DailyRegistrations[i].Date < out.DailyRegistrations[j].Date
	})
	return out
}

func (t *tally) items() []ItemSalesMetrics {
	out := make([]ItemSalesMetrics, 0, len(t.itemKeys))
	for _, id := range t.itemKeys {
		out = append(out, *t.byItem[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ItemName < out[j].ItemName })
	return out
}
