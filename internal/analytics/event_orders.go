package analytics

import (
	"context"
	"fmt"
	"strings"

	"ms-fest/internal/auth"
	"ms-fest/internal/models"

	"github.com/uptrace/bun"
)

// OrderSortField defines the valid fields for sorting orders
type OrderSortField string

const (
	OrderSortByAmount    OrderSortField = "amount"
	OrderSortByCreatedAt OrderSortField = "created_at"
)

// EventOrderOptions contains options for filtering and sorting orders
type EventOrderOptions struct {
	Status   string
	ItemID   string
	SortBy   string
	SortDesc bool
	Limit    int
	Offset   int
}

// GetEventOrders returns the event's registrations with their participant,
// filtered, sorted and paged.
func (s *Service) GetEventOrders(ctx context.Context, caller auth.Identity, eventID string, options EventOrderOptions) ([]models.Registration, error) {
	statuses, err := parseStatus(options.Status)
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

	orders := []models.Registration{}
	q := s.DB.Bun.NewSelect().
		Model(&orders).
		Relation("Participant").
		Where("registration.event_id = ?", ev.ID)

	if len(statuses) > 0 {
		q = q.Where("registration.status IN (?)", bun.In(statuses))
	}
	if options.ItemID != "" {
		q = q.Where("registration.merch_item_id = ?", options.ItemID)
	}

	direction := "ASC"
	if options.SortDesc {
		direction = "DESC"
	}
	switch OrderSortField(strings.ToLower(options.SortBy)) {
	case OrderSortByAmount:
		q = q.OrderExpr("registration.amount_paid " + direction)
	case OrderSortByCreatedAt:
		q = q.OrderExpr("registration.created_at " + direction)
	default:
		// Newest first
		q = q.OrderExpr("registration.created_at DESC")
	}

	if options.Limit > 0 {
		q = q.Limit(options.Limit)
	}
	if options.Offset > 0 {
		q = q.Offset(options.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list event orders: %w", err)
	}
	return orders, nil
}
