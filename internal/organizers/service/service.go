// Package organizers holds the administrative operations on organizer
// profiles.
package organizers

import (
	"context"
	"fmt"

	"ms-fest/internal/auth"
	"ms-fest/internal/logger"
	"ms-fest/internal/models"
	orgdb "ms-fest/internal/organizers/db"

	"github.com/uptrace/bun"
)

type AdminService struct {
	Organizers *orgdb.DB
	Logger     *logger.Logger
}

func NewAdminService(db *bun.DB, log *logger.Logger) *AdminService {
	return &AdminService{
		Organizers: &orgdb.DB{Bun: db},
		Logger:     log,
	}
}

// SetOrganizerActive enables or disables an organizer. A disabled organizer
// keeps its events but cannot publish new ones.
func (s *AdminService) SetOrganizerActive(ctx context.Context, caller auth.Identity, organizerID string, active bool) (*models.Organizer, error) {
	if err := auth.Authorize(auth.OpSetOrganizerActive, caller, auth.Resource{}); err != nil {
		s.Logger.LogSecurity("ADMIN_DENIED", fmt.Sprintf("%s tried to toggle organizer %s", caller.UserID, organizerID))
		return nil, err
	}
	if err := s.Organizers.SetActive(ctx, organizerID, active); err != nil {
		return nil, err
	}
	s.Logger.Info("ADMIN", fmt.Sprintf("Organizer %s active=%t by %s", organizerID, active, caller.UserID))
	return s.Organizers.GetByID(ctx, organizerID)
}

// PurgeOrganizer deletes an organizer with its events, items, registrations
// and audit entries.
func (s *AdminService) PurgeOrganizer(ctx context.Context, caller auth.Identity, organizerID string) (orgdb.PurgeResult, error) {
	if err := auth.Authorize(auth.OpPurgeOrganizer, caller, auth.Resource{}); err != nil {
		s.Logger.LogSecurity("ADMIN_DENIED", fmt.Sprintf("%s tried to purge organizer %s", caller.UserID, organizerID))
		return orgdb.PurgeResult{}, err
	}
	res, err := s.Organizers.Purge(ctx, organizerID)
	if err != nil {
		return res, err
	}
	s.Logger.Warn("ADMIN", fmt.Sprintf("Organizer %s purged by %s: %d events, %d items, %d registrations, %d audit entries",
		organizerID, caller.UserID, res.Events, res.Items, res.Registrations, res.AuditEntries))
	return res, nil
}
