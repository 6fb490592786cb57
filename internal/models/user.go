package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        string    `bun:"id,pk" json:"id"`
	Email     string    `bun:"email,unique,notnull" json:"email"`
	FirstName string    `bun:"first_name,notnull" json:"first_name"`
	LastName  string    `bun:"last_name" json:"last_name"`
	Role      string    `bun:"role,notnull" json:"role"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type OrganizerCategory string

const (
	OrganizerClub     OrganizerCategory = "CLUB"
	OrganizerCouncil  OrganizerCategory = "COUNCIL"
	OrganizerFestTeam OrganizerCategory = "FEST_TEAM"
)

type Organizer struct {
	bun.BaseModel `bun:"table:organizers"`

	ID                string            `bun:"id,pk" json:"id"`
	UserID            string            `bun:"user_id,unique,notnull" json:"user_id"`
	Name              string            `bun:"name,notnull" json:"name"`
	Category          OrganizerCategory `bun:"category,notnull" json:"category"`
	Description       string            `bun:"description" json:"description"`
	ContactEmail      string            `bun:"contact_email" json:"contact_email"`
	DiscordWebhookURL string            `bun:"discord_webhook_url,nullzero" json:"-"`
	IsActive          bool              `bun:"is_active,notnull" json:"is_active"`
	CreatedAt         time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
