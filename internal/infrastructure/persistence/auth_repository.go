package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tenantcore/backend/internal/domain/models"
	"github.com/tenantcore/backend/pkg/constants"
	apperrors "github.com/tenantcore/backend/pkg/errors"
)

// AuthRepository loads the identity graph the permission engine evaluates:
// users, roles, team memberships, team ancestry and explicit grants.
type AuthRepository struct {
	tm *TransactionManager
}

// NewAuthRepository creates a new AuthRepository
func NewAuthRepository(tm *TransactionManager) *AuthRepository {
	return &AuthRepository{tm: tm}
}

// ListRoles returns the whole role forest
func (r *AuthRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := r.tm.Querier(ctx).QueryContext(ctx,
		"SELECT `id`, `name`, `parent_role_id` FROM `roles`")
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		var parent sql.NullString
		if err := rows.Scan(&role.ID, &role.Name, &parent); err != nil {
			return nil, err
		}
		if parent.Valid {
			role.ParentRoleID = &parent.String
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListMemberships returns every membership row for the user, active or not;
// activity is evaluated by the caller against its notion of now
func (r *AuthRepository) ListMemberships(ctx context.Context, userID string) ([]models.TeamMembership, error) {
	rows, err := r.tm.Querier(ctx).QueryContext(ctx,
		"SELECT `id`, `user_id`, `team_id`, `role_id`, `enabled`, `expires_at` FROM `user_teams` WHERE `user_id` = ?",
		userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []models.TeamMembership
	for rows.Next() {
		var m models.TeamMembership
		var expires sql.NullTime
		if err := rows.Scan(&m.ID, &m.UserID, &m.TeamID, &m.RoleID, &m.Enabled, &expires); err != nil {
			return nil, err
		}
		if expires.Valid {
			t := expires.Time
			m.ExpiresAt = &t
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// TeamAncestors returns the team's parent chain nearest-first, the team
// itself included, bounded by maxDepth levels. Uses a recursive CTE; chains
// deeper than the bound are cut, never followed.
func (r *AuthRepository) TeamAncestors(ctx context.Context, teamID string, maxDepth int) ([]string, error) {
	if maxDepth <= 0 {
		maxDepth = constants.DefaultMaxTeamDepth
	}
	rows, err := r.tm.Querier(ctx).QueryContext(ctx, `
		WITH RECURSIVE team_chain (id, parent_team_id, depth) AS (
			SELECT id, parent_team_id, 0 FROM teams WHERE id = ?
			UNION ALL
			SELECT t.id, t.parent_team_id, tc.depth + 1
			FROM teams t
			JOIN team_chain tc ON t.id = tc.parent_team_id
			WHERE tc.depth < ?
		)
		SELECT id FROM team_chain ORDER BY depth`,
		teamID, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("team ancestors: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GrantsFor returns grants on one record, earliest-expiring first so the
// strongest still-valid grant is seen before later ones
func (r *AuthRepository) GrantsFor(ctx context.Context, kind, recordID string) ([]models.Grant, error) {
	rows, err := r.tm.Querier(ctx).QueryContext(ctx, `
		SELECT id, resource_kind, resource_id, user_id, team_id, role_id,
		       can_view, can_execute, can_copy, can_edit, can_delete, can_share,
		       expires_at
		FROM permissions
		WHERE resource_kind = ? AND resource_id = ?
		ORDER BY expires_at IS NULL, expires_at`,
		kind, recordID)
	if err != nil {
		return nil, fmt.Errorf("grants for %s/%s: %w", kind, recordID, err)
	}
	defer rows.Close()

	var grants []models.Grant
	for rows.Next() {
		var g models.Grant
		var userID, teamID, roleID sql.NullString
		var expires sql.NullTime
		if err := rows.Scan(&g.ID, &g.ResourceKind, &g.ResourceID,
			&userID, &teamID, &roleID,
			&g.CanView, &g.CanExecute, &g.CanCopy, &g.CanEdit, &g.CanDelete, &g.CanShare,
			&expires); err != nil {
			return nil, err
		}
		if userID.Valid {
			g.UserID = &userID.String
		}
		if teamID.Valid {
			g.TeamID = &teamID.String
		}
		if roleID.Valid {
			g.RoleID = &roleID.String
		}
		if expires.Valid {
			t := expires.Time
			g.ExpiresAt = &t
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// GetUserByEmail loads a live user for authentication
func (r *AuthRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	var deleted sql.NullTime
	err := r.tm.Querier(ctx).QueryRowContext(ctx,
		"SELECT `id`, `email`, `display_name`, `password_hash`, `active`, `deleted_at` FROM `users` WHERE `email` = ? AND `deleted_at` IS NULL",
		email).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Active, &deleted)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("user", "")
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// DeleteExpiredGrants purges grant rows whose expiry has passed. Called by
// the grant sweeper service; the rows are dead weight once expired since the
// engine already treats them as absent.
func (r *AuthRepository) DeleteExpiredGrants(ctx context.Context) (int64, error) {
	res, err := r.tm.Querier(ctx).ExecContext(ctx,
		"DELETE FROM `permissions` WHERE `expires_at` IS NOT NULL AND `expires_at` <= NOW()")
	if err != nil {
		return 0, fmt.Errorf("delete expired grants: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
