package events

import (
	"time"

	"ms-fest/internal/apperr"
	"ms-fest/internal/models"
)

// Patch is a partial event update. Nil fields are left alone.
type Patch struct {
	Name                 *string               `json:"name,omitempty"`
	Type                 *models.EventType     `json:"type,omitempty" validate:"omitempty,oneof=NORMAL MERCHANDISE"`
	Description          *string               `json:"description,omitempty"`
	Eligibility          *string               `json:"eligibility,omitempty"`
	Category             *string               `json:"category,omitempty"`
	Tags                 *[]string             `json:"tags,omitempty"`
	Venue                *string               `json:"venue,omitempty"`
	IsOnline             *bool                 `json:"is_online,omitempty"`
	RegistrationDeadline *time.Time            `json:"registration_deadline,omitempty"`
	StartDate            *time.Time            `json:"start_date,omitempty"`
	EndDate              *time.Time            `json:"end_date,omitempty"`
	RegistrationLimit    *int                  `json:"registration_limit,omitempty"`
	RegistrationFee      *float64              `json:"registration_fee,omitempty"`
	CustomFields         *[]models.CustomField `json:"custom_fields,omitempty"`
	MerchandiseItems     *[]ItemInput          `json:"merchandise_items,omitempty" validate:"omitempty,dive"`
	Status               *models.EventStatus   `json:"status,omitempty"`
}

// itemsColumn marks a patch that replaces the merchandise item rows rather
// than an events column.
const itemsColumn = "merchandise_items"

// manualTransitions are the status changes an organizer may request, keyed
// by current status. PUBLISHED -> ONGOING and ONGOING -> COMPLETED also
// happen automatically.
var manualTransitions = map[models.EventStatus][]models.EventStatus{
	models.EventDraft:     {models.EventPublished, models.EventCancelled, models.EventClosed},
	models.EventPublished: {models.EventCancelled, models.EventClosed},
	models.EventOngoing:   {models.EventCompleted, models.EventClosed},
	models.EventCompleted: {models.EventClosed},
}

var automaticTransitions = map[models.EventStatus]models.EventStatus{
	models.EventPublished: models.EventOngoing,
	models.EventOngoing:   models.EventCompleted,
}

func CanTransition(from, to models.EventStatus) bool {
	if automaticTransitions[from] == to {
		return true
	}
	for _, s := range manualTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func canRequest(from, to models.EventStatus) bool {
	for _, s := range manualTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyPatch applies p to ev under the edit policy of ev's current status.
// It returns the columns that changed and the requested status, if any. ev
// is only modified when the whole patch is acceptable.
func ApplyPatch(ev *models.Event, p Patch) ([]string, *models.EventStatus, error) {
	if p.Status != nil && *p.Status == ev.Status {
		p.Status = nil
	}
	if p.Status != nil && !canRequest(ev.Status, *p.Status) {
		return nil, nil, apperr.ErrInvalidTransition.WithMessage("cannot move event from %s to %s", ev.Status, *p.Status)
	}
	if p.CustomFields != nil && ev.IsFormLocked {
		return nil, nil, apperr.ErrFormLocked
	}

	next := *ev
	var columns []string

	switch ev.Status {
	case models.EventDraft:
		columns = applyDraft(&next, p)
		switch next.Type {
		case models.EventTypeNormal:
			if len(next.MerchandiseItems) > 0 {
				next.MerchandiseItems = nil
				if !hasColumn(columns, itemsColumn) {
					columns = append(columns, itemsColumn)
				}
			}
		case models.EventTypeMerchandise:
			if len(next.MerchandiseItems) == 0 {
				return nil, nil, apperr.Validationf("merchandise events need at least one item")
			}
		default:
			return nil, nil, apperr.Validationf("type must be NORMAL or MERCHANDISE")
		}

	case models.EventPublished:
		if field := firstSet(p, "name", "type", "eligibility", "category", "tags", "venue", "is_online",
			"start_date", "end_date", "registration_fee", "custom_fields", "merchandise_items"); field != "" {
			return nil, nil, apperr.ErrEditNotAllowed.WithMessage("%s cannot be edited once the event is published", field)
		}
		if p.Description != nil {
			next.Description = *p.Description
			columns = append(columns, "description")
		}
		if p.RegistrationDeadline != nil {
			if p.RegistrationDeadline.Before(ev.RegistrationDeadline) {
				return nil, nil, apperr.Validationf("registration deadline can only be extended")
			}
			next.RegistrationDeadline = p.RegistrationDeadline.UTC()
			columns = append(columns, "registration_deadline")
		}
		if p.RegistrationLimit != nil {
			if *p.RegistrationLimit < ev.RegistrationLimit {
				return nil, nil, apperr.Validationf("registration limit can only be increased")
			}
			next.RegistrationLimit = *p.RegistrationLimit
			columns = append(columns, "registration_limit")
		}

	default:
		// ONGOING and COMPLETED accept only a status change; CLOSED and
		// CANCELLED accept nothing.
		if field := firstSet(p, "name", "type", "description", "eligibility", "category", "tags", "venue", "is_online",
			"registration_deadline", "start_date", "end_date", "registration_limit", "registration_fee",
			"custom_fields", "merchandise_items"); field != "" {
			return nil, nil, apperr.ErrEditNotAllowed.WithMessage("event is %s; %s cannot be edited", ev.Status, field)
		}
		if p.Status == nil && ev.Status.Terminal() {
			return nil, nil, apperr.ErrEditNotAllowed.WithMessage("event is %s and cannot be edited", ev.Status)
		}
	}

	if err := validateDates(&next); err != nil {
		return nil, nil, err
	}
	*ev = next
	return columns, p.Status, nil
}

func applyDraft(ev *models.Event, p Patch) []string {
	var columns []string
	set := func(column string) { columns = append(columns, column) }

	if p.Name != nil {
		ev.Name = *p.Name
		set("name")
	}
	if p.Type != nil {
		ev.Type = *p.Type
		set("type")
	}
	if p.Description != nil {
		ev.Description = *p.Description
		set("description")
	}
	if p.Eligibility != nil {
		ev.Eligibility = *p.Eligibility
		set("eligibility")
	}
	if p.Category != nil {
		ev.Category = *p.Category
		set("category")
	}
	if p.Tags != nil {
		ev.Tags = *p.Tags
		set("tags")
	}
	if p.Venue != nil {
		ev.Venue = *p.Venue
		set("venue")
	}
	if p.IsOnline != nil {
		ev.IsOnline = *p.IsOnline
		set("is_online")
	}
	if p.RegistrationDeadline != nil {
		ev.RegistrationDeadline = p.RegistrationDeadline.UTC()
		set("registration_deadline")
	}
	if p.StartDate != nil {
		ev.StartDate = p.StartDate.UTC()
		set("start_date")
	}
	if p.EndDate != nil {
		ev.EndDate = p.EndDate.UTC()
		set("end_date")
	}
	if p.RegistrationLimit != nil {
		ev.RegistrationLimit = *p.RegistrationLimit
		set("registration_limit")
	}
	if p.RegistrationFee != nil {
		ev.RegistrationFee = *p.RegistrationFee
		set("registration_fee")
	}
	if p.CustomFields != nil {
		ev.CustomFields = *p.CustomFields
		set("custom_fields")
	}
	if p.MerchandiseItems != nil {
		ev.MerchandiseItems = newItems(ev.ID, *p.MerchandiseItems)
		set(itemsColumn)
	}
	return columns
}

func hasColumn(columns []string, column string) bool {
	for _, c := range columns {
		if c == column {
			return true
		}
	}
	return false
}

func firstSet(p Patch, fields ...string) string {
	set := map[string]bool{
		"name":                  p.Name != nil,
		"type":                  p.Type != nil,
		"description":           p.Description != nil,
		"eligibility":           p.Eligibility != nil,
		"category":              p.Category != nil,
		"tags":                  p.Tags != nil,
		"venue":                 p.Venue != nil,
		"is_online":             p.IsOnline != nil,
		"registration_deadline": p.RegistrationDeadline != nil,
		"start_date":            p.StartDate != nil,
		"end_date":              p.EndDate != nil,
		"registration_limit":    p.RegistrationLimit != nil,
		"registration_fee":      p.RegistrationFee != nil,
		"custom_fields":         p.CustomFields != nil,
		"merchandise_items":     p.MerchandiseItems != nil,
	}
	for _, f := range fields {
		if set[f] {
			return f
		}
	}
	return ""
}

func validateDates(ev *models.Event) error {
	if !ev.StartDate.Before(ev.EndDate) {
		return apperr.Validationf("start date must be before end date")
	}
	if ev.RegistrationDeadline.After(ev.EndDate) {
		return apperr.Validationf("registration deadline must not be after the end date")
	}
	if ev.RegistrationLimit < 0 {
		return apperr.Validationf("registration limit must not be negative")
	}
	if ev.RegistrationFee < 0 {
		return apperr.Validationf("registration fee must not be negative")
	}
	return nil
}
