// repository/user_repository.go
package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, bool, error)
	ListTeamMembersByRole(ctx context.Context, teamID int64, roles ...string) ([]*models.TeamMember, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, bool, error) {
	var user models.User
	query := "SELECT id, name, email FROM users WHERE id = $1"
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Name, &user.Email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}
	return &user, true, nil
}

// ListTeamMembersByRole returns existing team members holding one of roles, owners first.
func (r *userRepository) ListTeamMembersByRole(ctx context.Context, teamID int64, roles ...string) ([]*models.TeamMember, error) {
	query := `
		SELECT tm.team_id, tm.user_id, tm.role
		FROM team_members tm
		JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = $1 AND tm.role = ANY($2)
		ORDER BY CASE tm.role WHEN 'OWNER' THEN 0 ELSE 1 END, tm.user_id
	`
	rows, err := r.db.QueryContext(ctx, query, teamID, pq.Array(roles))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var members []*models.TeamMember
	for rows.Next() {
		var m models.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return members, nil
}
