package auth

import "ms-fest/internal/apperr"

type Operation string

const (
	OpCreateEvent         Operation = "event.create"
	OpUpdateEvent         Operation = "event.update"
	OpPublishEvent        Operation = "event.publish"
	OpCancelEvent         Operation = "event.cancel"
	OpListOrganizerEvents Operation = "event.list_own"

	OpRegister             Operation = "registration.create"
	OpPurchaseMerchandise  Operation = "registration.purchase"
	OpListMyRegistrations  Operation = "registration.list_mine"
	OpViewRegistration     Operation = "registration.view"
	OpUploadPaymentProof   Operation = "registration.upload_proof"
	OpCancelRegistration   Operation = "registration.cancel"
	OpApproveRegistration  Operation = "registration.approve"
	OpRejectRegistration   Operation = "registration.reject"
	OpListEventRegistrants Operation = "registration.list_event"

	OpScanTicket       Operation = "attendance.scan"
	OpOverrideAttend   Operation = "attendance.override"
	OpAttendanceStats  Operation = "attendance.stats"
	OpExportAttendance Operation = "attendance.export"

	OpEventAnalytics     Operation = "analytics.event"
	OpOrganizerAnalytics Operation = "analytics.organizer"

	OpSetOrganizerActive Operation = "admin.organizer_active"
	OpPurgeOrganizer     Operation = "admin.organizer_purge"
)

// Ownership is the relationship the caller must hold to the target.
type Ownership int

const (
	OwnsNothing Ownership = iota
	// OwnsEvent: the caller is the user behind the event's organizer profile.
	OwnsEvent
	// OwnsRegistration: the caller is the registration's participant.
	OwnsRegistration
)

type Grant struct {
	Role      Role
	Ownership Ownership
}

// Capabilities declares, once per operation, who may perform it. An
// operation missing from the table is denied.
var Capabilities = map[Operation][]Grant{
	OpCreateEvent:         {{RoleOrganizer, OwnsNothing}},
	OpUpdateEvent:         {{RoleOrganizer, OwnsEvent}},
	OpPublishEvent:        {{RoleOrganizer, OwnsEvent}},
	OpCancelEvent:         {{RoleOrganizer, OwnsEvent}},
	OpListOrganizerEvents: {{RoleOrganizer, OwnsNothing}},

	OpRegister:            {{RoleParticipant, OwnsNothing}},
	OpPurchaseMerchandise: {{RoleParticipant, OwnsNothing}},
	OpListMyRegistrations: {{RoleParticipant, OwnsNothing}},
	OpViewRegistration: {
		{RoleParticipant, OwnsRegistration},
		{RoleOrganizer, OwnsEvent},
	},
	OpUploadPaymentProof:   {{RoleParticipant, OwnsRegistration}},
	OpCancelRegistration:   {{RoleParticipant, OwnsRegistration}},
	OpApproveRegistration:  {{RoleOrganizer, OwnsEvent}},
	OpRejectRegistration:   {{RoleOrganizer, OwnsEvent}},
	OpListEventRegistrants: {{RoleOrganizer, OwnsEvent}},

	OpScanTicket:       {{RoleOrganizer, OwnsEvent}},
	OpOverrideAttend:   {{RoleOrganizer, OwnsEvent}},
	OpAttendanceStats:  {{RoleOrganizer, OwnsEvent}},
	OpExportAttendance: {{RoleOrganizer, OwnsEvent}},

	OpEventAnalytics:     {{RoleOrganizer, OwnsEvent}},
	OpOrganizerAnalytics: {{RoleOrganizer, OwnsNothing}},

	OpSetOrganizerActive: {{RoleAdmin, OwnsNothing}},
	OpPurgeOrganizer:     {{RoleAdmin, OwnsNothing}},
}

// Resource carries the ownership facts of the target entity.
type Resource struct {
	OrganizerUserID string
	ParticipantID   string
}

func Authorize(op Operation, id Identity, res Resource) error {
	if id.UserID == "" {
		return apperr.ErrNotAuthorized.WithMessage("no caller identity")
	}
	for _, g := range Capabilities[op] {
		if g.Role != id.Role {
			continue
		}
		switch g.Ownership {
		case OwnsNothing:
			return nil
		case OwnsEvent:
			if res.OrganizerUserID != "" && res.OrganizerUserID == id.UserID {
				return nil
			}
		case OwnsRegistration:
			if res.ParticipantID != "" && res.ParticipantID == id.UserID {
				return nil
			}
		}
	}
	return apperr.ErrNotAuthorized.WithMessage("%s may not perform %s", id.Role, op)
}
