package models

import "time"

const (
	TaskStatusStarted = "STARTED"
	TaskStatusSuccess = "SUCCESS"
	TaskStatusError   = "ERROR"
	TaskStatusWarning = "WARNING"
	TaskStatusInfo    = "INFO"
)

// TaskLog is an append-only audit entry. Rows are never updated, only pruned by age.
type TaskLog struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}
