package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/tenantcore/backend/internal/infrastructure/database"
	apperrors "github.com/tenantcore/backend/pkg/errors"
)

func newMockAuthRepo(t *testing.T) (*AuthRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewAuthRepository(NewTransactionManager(database.NewFromDB(db))), mock
}

func TestListRolesScansNullParents(t *testing.T) {
	repo, mock := newMockAuthRepo(t)
	mock.ExpectQuery("SELECT `id`, `name`, `parent_role_id` FROM `roles`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "parent_role_id"}).
			AddRow("r-super", "superadmin", nil).
			AddRow("r-admin", "admin", "r-super"))

	roles, err := repo.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 2)
	require.Nil(t, roles[0].ParentRoleID)
	require.NotNil(t, roles[1].ParentRoleID)
	require.Equal(t, "r-super", *roles[1].ParentRoleID)
}

func TestListMemberships(t *testing.T) {
	repo, mock := newMockAuthRepo(t)
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT `id`, `user_id`, `team_id`, `role_id`, `enabled`, `expires_at` FROM `user_teams`").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "team_id", "role_id", "enabled", "expires_at"}).
			AddRow("m1", "u1", "t1", "r1", true, nil).
			AddRow("m2", "u1", "t2", "r2", false, expires))

	memberships, err := repo.ListMemberships(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, memberships, 2)
	require.Nil(t, memberships[0].ExpiresAt)
	require.True(t, memberships[0].Enabled)
	require.Equal(t, expires, *memberships[1].ExpiresAt)
	require.False(t, memberships[1].Enabled)
}

func TestTeamAncestorsNearestFirst(t *testing.T) {
	repo, mock := newMockAuthRepo(t)
	mock.ExpectQuery("WITH RECURSIVE team_chain").
		WithArgs("t-child", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow("t-child").
			AddRow("t-parent").
			AddRow("t-root"))

	chain, err := repo.TeamAncestors(context.Background(), "t-child", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"t-child", "t-parent", "t-root"}, chain)
}

func TestTeamAncestorsDefaultsDepth(t *testing.T) {
	repo, mock := newMockAuthRepo(t)
	mock.ExpectQuery("WITH RECURSIVE team_chain").
		WithArgs("t1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))

	_, err := repo.TeamAncestors(context.Background(), "t1", 0)
	require.NoError(t, err)
}

func TestGrantsForScansSubjectsAndExpiry(t *testing.T) {
	repo, mock := newMockAuthRepo(t)
	expires := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "resource_kind", "resource_id", "user_id", "team_id", "role_id",
		"can_view", "can_execute", "can_copy", "can_edit", "can_delete", "can_share", "expires_at"}
	mock.ExpectQuery("SELECT id, resource_kind, resource_id").
		WithArgs("doc", "d1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("g1", "doc", "d1", "u1", nil, nil, true, false, false, true, false, false, expires).
			AddRow("g2", "doc", "d1", nil, nil, nil, true, false, false, false, false, false, nil))

	grants, err := repo.GrantsFor(context.Background(), "doc", "d1")
	require.NoError(t, err)
	require.Len(t, grants, 2)

	require.Equal(t, "u1", *grants[0].UserID)
	require.True(t, grants[0].CanEdit)
	require.Equal(t, expires, *grants[0].ExpiresAt)

	require.True(t, grants[1].IsGlobal())
	require.Nil(t, grants[1].ExpiresAt)
}

func TestGetUserByEmail(t *testing.T) {
	repo, mock := newMockAuthRepo(t)
	cols := []string{"id", "email", "display_name", "password_hash", "active", "deleted_at"}
	mock.ExpectQuery("SELECT `id`, `email`, `display_name`").
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "a@example.com", "A", "hash", true, nil))

	u, err := repo.GetUserByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)
	require.True(t, u.Active)

	mock.ExpectQuery("SELECT `id`, `email`, `display_name`").
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(cols))

	_, err = repo.GetUserByEmail(context.Background(), "ghost@example.com")
	require.True(t, apperrors.IsNotFound(err))
}

func TestDeleteExpiredGrants(t *testing.T) {
	repo, mock := newMockAuthRepo(t)
	mock.ExpectExec("DELETE FROM `permissions` WHERE `expires_at` IS NOT NULL").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpiredGrants(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}
