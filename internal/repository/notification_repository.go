package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) (int64, error)
	ExistsSince(ctx context.Context, userID int64, kind string, postID int64, since time.Time) (bool, error)
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) (int64, error) {
	query := `
		INSERT INTO notifications (user_id, kind, subject, body, post_id, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, n.UserID, n.Kind, n.Subject, n.Body, n.PostID).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

// ExistsSince reports whether userID was sent a kind notification about postID at or after since.
func (r *notificationRepository) ExistsSince(ctx context.Context, userID int64, kind string, postID int64, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1 AND kind = $2 AND post_id = $3 AND created_at >= $4
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, kind, postID, since).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
