package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	CountDue(ctx context.Context, now time.Time) (int, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error)
	UpdatePostStatus(ctx context.Context, status string, postID int64) error
	SetPublished(ctx context.Context, postID int64, status string, publishedAt time.Time) error
	Reschedule(ctx context.Context, postID int64, scheduledTime time.Time) error
	ListOverdueByApproval(ctx context.Context, now time.Time, approvalStatus string) ([]*models.OverdueApproval, error)
	ListPendingWithExpiredAccounts(ctx context.Context, now time.Time) ([]*models.PostWithAccount, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `p.id, p.user_id, p.team_id, p.caption, p.title, p.scheduled_time, p.published_at, p.status, p.created_at, p.updated_at`

func scanPost(row interface{ Scan(...any) error }, post *models.Post, extra ...any) error {
	dest := []any{&post.ID, &post.UserID, &post.TeamID, &post.Caption, &post.Title, &post.ScheduledTime,
		&post.PublishedAt, &post.Status, &post.CreatedAt, &post.UpdatedAt}
	return row.Scan(append(dest, extra...)...)
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts p WHERE p.id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var post models.Post
	if err := scanPost(row, &post); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &post, nil
}

func (r *postRepository) CountDue(ctx context.Context, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM posts WHERE status = $1 AND scheduled_time <= $2`

	var total int
	if err := r.db.QueryRowContext(ctx, query, models.PostStatusScheduled, now).Scan(&total); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return total, nil
}

func (r *postRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts p
		WHERE p.status = $1 AND p.scheduled_time <= $2
		ORDER BY p.scheduled_time ASC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusScheduled, now, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		var post models.Post
		if err := scanPost(rows, &post); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, &post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) UpdatePostStatus(ctx context.Context, status string, postID int64) error {
	query := `
		UPDATE posts 
		SET status = $1,  
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) SetPublished(ctx context.Context, postID int64, status string, publishedAt time.Time) error {
	query := `
		UPDATE posts
		SET status = $1,
			published_at = $2,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, publishedAt, postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) Reschedule(ctx context.Context, postID int64, scheduledTime time.Time) error {
	query := `UPDATE posts SET scheduled_time = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, scheduledTime, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ListOverdueByApproval returns draft posts whose scheduled time has passed together with
// their approval instance in the given status.
func (r *postRepository) ListOverdueByApproval(ctx context.Context, now time.Time, approvalStatus string) ([]*models.OverdueApproval, error) {
	query := `SELECT ` + postColumns + `, ai.id, ai.post_id, ai.team_id, ai.status, ai.created_at, ai.updated_at
		FROM posts p
		JOIN approval_instances ai ON ai.post_id = p.id
		WHERE p.status = $1 AND p.scheduled_time < $2 AND ai.status = $3
		ORDER BY p.scheduled_time ASC`

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusDraft, now, approvalStatus)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var result []*models.OverdueApproval
	for rows.Next() {
		var oa models.OverdueApproval
		err := scanPost(rows, &oa.Post, &oa.Instance.ID, &oa.Instance.PostID, &oa.Instance.TeamID,
			&oa.Instance.Status, &oa.Instance.CreatedAt, &oa.Instance.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		result = append(result, &oa)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return result, nil
}

// ListPendingWithExpiredAccounts returns draft or scheduled posts linked to an account whose
// credential expired at or before now.
func (r *postRepository) ListPendingWithExpiredAccounts(ctx context.Context, now time.Time) ([]*models.PostWithAccount, error) {
	query := `SELECT ` + postColumns + `, sa.id, sa.platform, sa.account_name, sa.token_expires_at
		FROM posts p
		JOIN post_accounts pa ON pa.post_id = p.id
		JOIN social_accounts sa ON sa.id = pa.account_id
		WHERE p.status IN ($1, $2) AND pa.status <> $3 AND sa.token_expires_at <= $4`

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusDraft, models.PostStatusScheduled, models.LinkStatusPublished, now)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var result []*models.PostWithAccount
	for rows.Next() {
		var pwa models.PostWithAccount
		err := scanPost(rows, &pwa.Post, &pwa.Account.ID, &pwa.Account.Platform, &pwa.Account.AccountName, &pwa.Account.TokenExpiresAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		result = append(result, &pwa)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return result, nil
}
