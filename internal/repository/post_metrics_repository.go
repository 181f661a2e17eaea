package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/models"
)

type PostMetricsRepository interface {
	Upsert(ctx context.Context, m *models.PostMetrics) error
}

type postMetricsRepository struct {
	db *sql.DB
}

func NewPostMetricsRepository(db *sql.DB) PostMetricsRepository {
	return &postMetricsRepository{db: db}
}

func (r *postMetricsRepository) Upsert(ctx context.Context, m *models.PostMetrics) error {
	query := `
		INSERT INTO post_metrics (post_id, account_id, views, likes, comments, shares, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (post_id, account_id) DO UPDATE SET
			views = EXCLUDED.views,
			likes = EXCLUDED.likes,
			comments = EXCLUDED.comments,
			shares = EXCLUDED.shares,
			collected_at = EXCLUDED.collected_at
	`
	_, err := r.db.ExecContext(ctx, query, m.PostID, m.AccountID, m.Views, m.Likes, m.Comments, m.Shares, m.CollectedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
