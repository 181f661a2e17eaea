package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// ApprovalRepository reads workflow state owned by the approval module. Writes are limited to
// the remediations the edge-case sweep applies.
type ApprovalRepository interface {
	GetInstanceByID(ctx context.Context, id int64) (*models.ApprovalInstance, error)
	ListInstancesByPostID(ctx context.Context, postID int64) ([]*models.ApprovalInstance, error)
	ListStuckInstances(ctx context.Context, createdBefore time.Time) ([]*models.ApprovalInstance, error)
	UpdateInstanceStatus(ctx context.Context, id int64, status string) error
	ListPendingAssignments(ctx context.Context, instanceID int64) ([]*models.ApprovalAssignment, error)
	ListOrphanedAssignments(ctx context.Context) ([]*models.ApprovalAssignment, error)
	CreateAssignment(ctx context.Context, a *models.ApprovalAssignment) (int64, error)
	ReassignAssignment(ctx context.Context, id, userID int64) error
}

type approvalRepository struct {
	db *sql.DB
}

func NewApprovalRepository(db *sql.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

const (
	instanceColumns   = `ai.id, ai.post_id, ai.team_id, ai.status, ai.created_at, ai.updated_at`
	assignmentColumns = `aa.id, aa.instance_id, aa.assigned_to, aa.status, aa.is_escalation, aa.responded_at, aa.created_at`
)

func scanInstance(row interface{ Scan(...any) error }, ai *models.ApprovalInstance) error {
	return row.Scan(&ai.ID, &ai.PostID, &ai.TeamID, &ai.Status, &ai.CreatedAt, &ai.UpdatedAt)
}

func scanAssignment(row interface{ Scan(...any) error }, aa *models.ApprovalAssignment) error {
	return row.Scan(&aa.ID, &aa.InstanceID, &aa.AssignedTo, &aa.Status, &aa.IsEscalation, &aa.RespondedAt, &aa.CreatedAt)
}

func (r *approvalRepository) GetInstanceByID(ctx context.Context, id int64) (*models.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances ai WHERE ai.id = $1`

	var ai models.ApprovalInstance
	if err := scanInstance(r.db.QueryRowContext(ctx, query, id), &ai); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &ai, nil
}

func (r *approvalRepository) ListInstancesByPostID(ctx context.Context, postID int64) ([]*models.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances ai WHERE ai.post_id = $1`
	return r.listInstances(ctx, query, postID)
}

// ListStuckInstances returns in-progress instances created before createdBefore on which no
// assignee has responded yet.
func (r *approvalRepository) ListStuckInstances(ctx context.Context, createdBefore time.Time) ([]*models.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances ai
		WHERE ai.status = $1 AND ai.created_at < $2
		AND NOT EXISTS (
			SELECT 1 FROM approval_assignments aa
			WHERE aa.instance_id = ai.id AND (aa.responded_at IS NOT NULL OR aa.is_escalation)
		)`
	return r.listInstances(ctx, query, models.ApprovalStatusInProgress, createdBefore)
}

func (r *approvalRepository) listInstances(ctx context.Context, query string, args ...any) ([]*models.ApprovalInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var instances []*models.ApprovalInstance
	for rows.Next() {
		var ai models.ApprovalInstance
		if err := scanInstance(rows, &ai); err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan row: %w", err)
		}
		instances = append(instances, &ai)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return instances, nil
}

func (r *approvalRepository) UpdateInstanceStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE approval_instances SET status = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *approvalRepository) ListPendingAssignments(ctx context.Context, instanceID int64) ([]*models.ApprovalAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM approval_assignments aa
		WHERE aa.instance_id = $1 AND aa.status = $2`
	return r.listAssignments(ctx, query, instanceID, models.ApprovalStatusPending)
}

// ListOrphanedAssignments returns pending assignments whose assignee no longer exists.
func (r *approvalRepository) ListOrphanedAssignments(ctx context.Context) ([]*models.ApprovalAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM approval_assignments aa
		LEFT JOIN users u ON u.id = aa.assigned_to
		WHERE aa.status = $1 AND u.id IS NULL`
	return r.listAssignments(ctx, query, models.ApprovalStatusPending)
}

func (r *approvalRepository) listAssignments(ctx context.Context, query string, args ...any) ([]*models.ApprovalAssignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var assignments []*models.ApprovalAssignment
	for rows.Next() {
		var aa models.ApprovalAssignment
		if err := scanAssignment(rows, &aa); err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan row: %w", err)
		}
		assignments = append(assignments, &aa)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return assignments, nil
}

func (r *approvalRepository) CreateAssignment(ctx context.Context, a *models.ApprovalAssignment) (int64, error) {
	query := `
		INSERT INTO approval_assignments (instance_id, assigned_to, status, is_escalation)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, a.InstanceID, a.AssignedTo, a.Status, a.IsEscalation).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *approvalRepository) ReassignAssignment(ctx context.Context, id, userID int64) error {
	query := `UPDATE approval_assignments SET assigned_to = $1 WHERE id = $2 AND status = $3`
	_, err := r.db.ExecContext(ctx, query, userID, id, models.ApprovalStatusPending)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
