package models

import "time"

const (
	NotificationUrgentReminder   = "approval_urgent_reminder"
	NotificationRescheduled      = "post_rescheduled"
	NotificationEscalation       = "approval_escalation"
	NotificationReassigned       = "approval_reassigned"
	NotificationReconfirmation   = "post_reconfirmation"
	NotificationAccountExpired   = "account_credentials_expired"
	NotificationPostExpired      = "post_approval_expired"
	NotificationTokenRefreshFail = "token_refresh_failed"
)

// Notification is an outbox row picked up by the mail sender.
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Kind      string    `db:"kind" json:"kind"`
	Subject   string    `db:"subject" json:"subject"`
	Body      string    `db:"body" json:"body"`
	PostID    *int64    `db:"post_id" json:"post_id,omitempty"`
	Status    string    `db:"status" json:"status"` // pending, sent
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
