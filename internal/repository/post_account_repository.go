package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// PostAccountRepository persists post_accounts rows. Every write is a single-row update keyed by
// (post_id, account_id) so concurrent writers converge.
type PostAccountRepository interface {
	GetByID(ctx context.Context, postID, accountID int64) (*models.PostAccountLink, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.PostAccountLink, error)
	ListPublishedSince(ctx context.Context, since time.Time) ([]*models.PostAccountLink, error)
	MarkPublished(ctx context.Context, postID, accountID int64, platformPostID string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, postID, accountID int64, errorMessage string) error
}

type postAccountRepository struct {
	db *sql.DB
}

func NewPostAccountRepository(db *sql.DB) PostAccountRepository {
	return &postAccountRepository{db: db}
}

const linkColumns = `post_id, account_id, status, published_at, COALESCE(platform_post_id, ''), COALESCE(error_message, ''), created_at, updated_at`

func scanLink(row interface{ Scan(...any) error }, link *models.PostAccountLink) error {
	return row.Scan(&link.PostID, &link.AccountID, &link.Status, &link.PublishedAt, &link.PlatformPostID,
		&link.ErrorMessage, &link.CreatedAt, &link.UpdatedAt)
}

func (r *postAccountRepository) GetByID(ctx context.Context, postID, accountID int64) (*models.PostAccountLink, error) {
	query := "SELECT " + linkColumns + " FROM post_accounts WHERE post_id = $1 AND account_id = $2"

	var link models.PostAccountLink
	err := scanLink(r.db.QueryRowContext(ctx, query, postID, accountID), &link)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, fmt.Errorf("query row: %w", err)
	}

	return &link, nil
}

func (r *postAccountRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PostAccountLink, error) {
	query := "SELECT " + linkColumns + " FROM post_accounts WHERE post_id = $1 ORDER BY account_id"
	return r.list(ctx, query, postID)
}

func (r *postAccountRepository) ListPublishedSince(ctx context.Context, since time.Time) ([]*models.PostAccountLink, error) {
	query := "SELECT " + linkColumns + " FROM post_accounts WHERE status = $1 AND published_at >= $2 ORDER BY published_at"
	return r.list(ctx, query, models.LinkStatusPublished, since)
}

func (r *postAccountRepository) list(ctx context.Context, query string, args ...any) ([]*models.PostAccountLink, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var links []*models.PostAccountLink
	for rows.Next() {
		var link models.PostAccountLink
		if err := scanLink(rows, &link); err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan row: %w", err)
		}
		links = append(links, &link)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return links, nil
}

func (r *postAccountRepository) MarkPublished(ctx context.Context, postID, accountID int64, platformPostID string, publishedAt time.Time) error {
	query := `
		UPDATE post_accounts
		SET status = $1,
			platform_post_id = $2,
			published_at = $3,
			error_message = NULL,
			updated_at = $3
		WHERE post_id = $4 AND account_id = $5
	`
	_, err := r.db.ExecContext(ctx, query, models.LinkStatusPublished, platformPostID, publishedAt, postID, accountID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// MarkFailed never downgrades a link that another writer already published.
func (r *postAccountRepository) MarkFailed(ctx context.Context, postID, accountID int64, errorMessage string) error {
	query := `
		UPDATE post_accounts
		SET status = $1,
			platform_post_id = NULL,
			error_message = $2,
			updated_at = $3
		WHERE post_id = $4 AND account_id = $5 AND status <> $6
	`
	_, err := r.db.ExecContext(ctx, query, models.LinkStatusFailed, errorMessage, time.Now(), postID, accountID, models.LinkStatusPublished)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
