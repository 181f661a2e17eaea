package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/require"
)

var postRowColumns = []string{"id", "user_id", "team_id", "caption", "title", "scheduled_time", "published_at", "status", "created_at", "updated_at"}

// TestPostRepository_ListDue_OldestFirst checks the due query is bounded and ordered by scheduled time
func TestPostRepository_ListDue_OldestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repository := NewPostRepository(db)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY p.scheduled_time ASC LIMIT $3`)).
		WithArgs(models.PostStatusScheduled, now, 10).
		WillReturnRows(sqlmock.NewRows(postRowColumns).
			AddRow(1, 7, 3, "first", "", now.Add(-2*time.Hour), nil, models.PostStatusScheduled, now, now).
			AddRow(2, 7, 3, "second", "", now.Add(-time.Hour), nil, models.PostStatusScheduled, now, now))

	posts, err := repository.ListDue(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, int64(1), posts[0].ID)
	require.Equal(t, "second", posts[1].Caption)
	require.Nil(t, posts[0].PublishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_CountDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repository := NewPostRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM posts WHERE status = $1 AND scheduled_time <= $2`)).
		WithArgs(models.PostStatusScheduled, now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(25))

	total, err := repository.CountDue(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 25, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repository := NewPostRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM posts p WHERE p.id = $1`)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(postRowColumns))

	post, err := repository.GetByID(context.Background(), 42)
	require.NoError(t, err)
	require.Nil(t, post)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_GetByID_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repository := NewPostRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM posts p WHERE p.id = $1`)).
		WithArgs(int64(42)).
		WillReturnError(fmt.Errorf("connection refused"))

	post, err := repository.GetByID(context.Background(), 42)
	require.Error(t, err)
	require.Nil(t, post)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_SetPublished(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repository := NewPostRepository(db)
	publishedAt := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE posts SET status = $1, published_at = $2, updated_at = $2 WHERE id = $3`)).
		WithArgs(models.PostStatusPublished, publishedAt, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repository.SetPublished(context.Background(), 5, models.PostStatusPublished, publishedAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_ListOverdueByApproval(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repository := NewPostRepository(db)
	now := time.Now()
	columns := append(append([]string{}, postRowColumns...), "ai_id", "ai_post_id", "ai_team_id", "ai_status", "ai_created_at", "ai_updated_at")

	mock.ExpectQuery(regexp.QuoteMeta(`JOIN approval_instances ai ON ai.post_id = p.id`)).
		WithArgs(models.PostStatusDraft, now, models.ApprovalStatusInProgress).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(9, 7, 3, "caption", "", now.Add(-time.Hour), nil, models.PostStatusDraft, now, now,
				11, 9, 3, models.ApprovalStatusInProgress, now, now))

	result, err := repository.ListOverdueByApproval(context.Background(), now, models.ApprovalStatusInProgress)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, int64(9), result[0].Post.ID)
	require.Equal(t, int64(11), result[0].Instance.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
