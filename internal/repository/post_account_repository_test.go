package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/require"
)

var linkRowColumns = []string{"post_id", "account_id", "status", "published_at", "platform_post_id", "error_message", "created_at", "updated_at"}

func TestPostAccountRepository_ListByPostID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repository := NewPostAccountRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM post_accounts WHERE post_id = $1`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(linkRowColumns).
			AddRow(1, 10, models.LinkStatusPublished, now, "ig_123", "", now, now).
			AddRow(1, 11, models.LinkStatusDraft, nil, "", "", now, now))

	links, err := repository.ListByPostID(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, links, 2)
	require.Equal(t, "ig_123", links[0].PlatformPostID)
	require.NotNil(t, links[0].PublishedAt)
	require.Empty(t, links[1].PlatformPostID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostAccountRepository_GetByID_Missing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repository := NewPostAccountRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE post_id = $1 AND account_id = $2`)).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows(linkRowColumns))

	link, err := repository.GetByID(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Nil(t, link)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostAccountRepository_MarkPublished(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repository := NewPostAccountRepository(db)
	publishedAt := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE post_accounts SET status = $1, platform_post_id = $2`)).
		WithArgs(models.LinkStatusPublished, "fb_99", publishedAt, int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repository.MarkPublished(context.Background(), 1, 2, "fb_99", publishedAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestPostAccountRepository_MarkFailed_KeepsPublished checks the failed write is guarded against published rows
func TestPostAccountRepository_MarkFailed_KeepsPublished(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repository := NewPostAccountRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE post_id = $4 AND account_id = $5 AND status <> $6`)).
		WithArgs(models.LinkStatusFailed, "rate limited", sqlmock.AnyArg(), int64(1), int64(2), models.LinkStatusPublished).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repository.MarkFailed(context.Background(), 1, 2, "rate limited")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
