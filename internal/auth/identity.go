package auth

import "context"

type Role string

const (
	RoleParticipant Role = "participant"
	RoleOrganizer   Role = "organizer"
	RoleAdmin       Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleParticipant || r == RoleOrganizer || r == RoleAdmin
}

// Identity is what the identity provider vouches for on each request.
type Identity struct {
	UserID string
	Role   Role
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// UserID is a helper for handlers that only need the subject.
func UserID(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return id.UserID
}
