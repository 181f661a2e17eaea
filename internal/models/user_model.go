package models

import "time"

type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

const (
	TeamRoleOwner   = "OWNER"
	TeamRoleManager = "MANAGER"
	TeamRoleMember  = "MEMBER"
)

type TeamMember struct {
	TeamID int64  `db:"team_id" json:"team_id"`
	UserID int64  `db:"user_id" json:"user_id"`
	Role   string `db:"role" json:"role"`
}
