package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// TaskLogRepository is append-only: there is no update path.
type TaskLogRepository interface {
	Create(ctx context.Context, tl *models.TaskLog) (int64, error)
	ListByWindow(ctx context.Context, from, to time.Time) ([]*models.TaskLog, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

type taskLogRepository struct {
	db *sql.DB
}

func NewTaskLogRepository(db *sql.DB) TaskLogRepository {
	return &taskLogRepository{db: db}
}

func (r *taskLogRepository) Create(ctx context.Context, tl *models.TaskLog) (int64, error) {
	query := `
		INSERT INTO task_logs (name, status, message, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	createdAt := tl.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query, tl.Name, tl.Status, tl.Message, createdAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *taskLogRepository) ListByWindow(ctx context.Context, from, to time.Time) ([]*models.TaskLog, error) {
	query := `SELECT id, name, status, message, created_at FROM task_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var logs []*models.TaskLog
	for rows.Next() {
		var tl models.TaskLog
		if err := rows.Scan(&tl.ID, &tl.Name, &tl.Status, &tl.Message, &tl.CreatedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		logs = append(logs, &tl)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return logs, nil
}

func (r *taskLogRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM task_logs WHERE created_at < $1`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return result.RowsAffected()
}
