package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

// Notifier is fire-and-forget: delivery problems are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification)
	// NotifyOnce queues n unless the same user already got the same kind about the same post
	// since the given time. It reports whether n was queued.
	NotifyOnce(ctx context.Context, n *models.Notification, since time.Time) bool
}

type notificationService struct {
	repo   repository.NotificationRepository
	logger *slog.Logger
}

func NewNotificationService(repo repository.NotificationRepository, logger *slog.Logger) Notifier {
	return &notificationService{repo: repo, logger: resolveLogger(logger)}
}

func (s *notificationService) Notify(ctx context.Context, n *models.Notification) {
	id, err := s.repo.Create(context.WithoutCancel(ctx), n)
	if err != nil {
		s.logger.Error("queue notification failed", "kind", n.Kind, "user_id", n.UserID, "error", err)
		return
	}
	s.logger.Debug("notification queued", "id", id, "kind", n.Kind, "user_id", n.UserID)
}

func (s *notificationService) NotifyOnce(ctx context.Context, n *models.Notification, since time.Time) bool {
	if n.PostID != nil {
		sent, err := s.repo.ExistsSince(ctx, n.UserID, n.Kind, *n.PostID, since)
		if err != nil {
			s.logger.Warn("notification history lookup failed", "kind", n.Kind, "user_id", n.UserID, "error", err)
		}
		if sent {
			s.logger.Debug("notification already sent", "kind", n.Kind, "user_id", n.UserID, "post_id", *n.PostID)
			return false
		}
	}
	s.Notify(ctx, n)
	return true
}

func postRef(id int64) *int64 {
	return &id
}
