package models

import "time"

const (
	ApprovalStatusPending    = "PENDING"
	ApprovalStatusInProgress = "IN_PROGRESS"
	ApprovalStatusApproved   = "APPROVED"
	ApprovalStatusRejected   = "REJECTED"
)

type ApprovalInstance struct {
	ID        int64     `db:"id" json:"id"`
	PostID    int64     `db:"post_id" json:"post_id"`
	TeamID    int64     `db:"team_id" json:"team_id"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type ApprovalAssignment struct {
	ID           int64      `db:"id" json:"id"`
	InstanceID   int64      `db:"instance_id" json:"instance_id"`
	AssignedTo   int64      `db:"assigned_to" json:"assigned_to"`
	Status       string     `db:"status" json:"status"`
	IsEscalation bool       `db:"is_escalation" json:"is_escalation"`
	RespondedAt  *time.Time `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// OverdueApproval pairs a post whose scheduled time has passed with one of its approval instances.
type OverdueApproval struct {
	Post     Post
	Instance ApprovalInstance
}
