package persistence

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/tenantcore/backend/internal/domain/models"
	"github.com/tenantcore/backend/internal/domain/ports"
	"github.com/tenantcore/backend/internal/domain/schema"
	"github.com/tenantcore/backend/internal/infrastructure/database"
	apperrors "github.com/tenantcore/backend/pkg/errors"
)

func newMockRepo(t *testing.T) (*EntityRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	tm := NewTransactionManager(database.NewFromDB(db))
	return NewEntityRepository(tm), mock
}

func docDef() *schema.EntityDef {
	return &schema.EntityDef{
		Kind: "doc", Plural: "docs", Table: "docs",
		Traits: schema.Traits{Audit: true, SoftDelete: true, UserRef: true},
		Fields: []schema.Field{{Name: "title", Type: schema.FieldTypeString}},
	}
}

func TestInsertBuildsSortedColumns(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `docs` (`id`, `title`) VALUES (?, ?)")).
		WithArgs("d1", "hello").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), docDef(), models.Record{"title": "hello", "id": "d1"})
	require.NoError(t, err)
}

func TestInsertDuplicateKeyIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO `docs`").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'd1' for key 'PRIMARY'"})

	err := repo.Insert(context.Background(), docDef(), models.Record{"id": "d1", "title": "x"})
	require.True(t, apperrors.IsConflict(err))
}

func TestGetByIDExcludesDeletedRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `docs` WHERE `docs`.`id` = ? AND `docs`.`deleted_at` IS NULL LIMIT 1")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("d1", []byte("hello")))

	rec, err := repo.GetByID(context.Background(), docDef(), "d1", false)
	require.NoError(t, err)
	require.Equal(t, "d1", rec.ID())
	// Driver byte slices normalize to strings
	require.Equal(t, "hello", rec.GetString("title"))
}

func TestGetByIDIncludeDeletedSkipsFilter(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `docs` WHERE `docs`.`id` = ? LIMIT 1")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("d1"))

	_, err := repo.GetByID(context.Background(), docDef(), "d1", true)
	require.NoError(t, err)
}

func TestGetByIDMissingIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT \\* FROM `docs`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), docDef(), "ghost", false)
	require.True(t, apperrors.IsNotFound(err))
}

func TestListAppliesOrderingPagingAndSecurity(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `docs` WHERE `docs`.`deleted_at` IS NULL AND `docs`.`title` LIKE ? AND `docs`.`user_id` = ? "+
			"ORDER BY `docs`.`created_at` DESC, `docs`.`id` ASC LIMIT 100")).
		WithArgs("%a%", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow("d2", "abc").
			AddRow("d1", "bar"))

	recs, err := repo.List(context.Background(), docDef(), ports.ListOptions{
		Predicates: []ports.Predicate{{SQL: "`docs`.`title` LIKE ?", Params: []interface{}{"%a%"}}},
		Security:   ports.Predicate{SQL: "`docs`.`user_id` = ?", Params: []interface{}{"u1"}},
		SortDesc:   true,
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "d2", recs[0].ID())
}

func TestListCapsTheLimit(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("LIMIT 1000 OFFSET 50").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.List(context.Background(), docDef(), ports.ListOptions{Limit: 5000, Offset: 50})
	require.NoError(t, err)
}

func TestCount(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) as `n` FROM `docs`")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(7))

	n, err := repo.Count(context.Background(), docDef(), ports.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 7, n)
}

func TestUpdateByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `docs` SET `title` = ? WHERE `id` = ?")).
		WithArgs("new", "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateByID(context.Background(), docDef(), "d1", map[string]interface{}{"title": "new"})
	require.NoError(t, err)
}

func TestUpdateByIDZeroRowsIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE `docs`").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateByID(context.Background(), docDef(), "ghost", map[string]interface{}{"title": "x"})
	require.True(t, apperrors.IsNotFound(err))

	// An empty diff never reaches the database
	require.NoError(t, repo.UpdateByID(context.Background(), docDef(), "d1", nil))
}

func TestSoftDeleteStampsTombstone(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE `docs` SET `deleted_at` = ?, `deleted_by_user_id` = ? WHERE `id` = ?")).
		WithArgs(now, "u1", "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), docDef(), "d1", "u1", now))
}

func TestHardDelete(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `docs` WHERE `id` = ?")).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.HardDelete(context.Background(), docDef(), "d1"))
}

func TestExists(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT 1 FROM `docs` WHERE `docs`.`id` = ? AND `docs`.`deleted_at` IS NULL LIMIT 1")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	ok, err := repo.Exists(context.Background(), docDef(), "d1", false)
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectQuery("SELECT 1 FROM `docs`").
		WillReturnError(sql.ErrNoRows)

	ok, err = repo.Exists(context.Background(), docDef(), "ghost", false)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExistsIncludeDeletedCountsTombstones(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT 1 FROM `docs` WHERE `docs`.`id` = ? LIMIT 1")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	ok, err := repo.Exists(context.Background(), docDef(), "d1", true)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsDuplicateKey(t *testing.T) {
	require.False(t, isDuplicateKey(nil))
	require.False(t, isDuplicateKey(errors.New("connection refused")))
	require.True(t, isDuplicateKey(errors.New("Error 1062: Duplicate entry")))
	require.True(t, isDuplicateKey(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x'"}))
}
