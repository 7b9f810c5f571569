package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/tenantcore/backend/internal/infrastructure/database"
)

func newMockTM(t *testing.T) (*TransactionManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewTransactionManager(database.NewFromDB(db)), mock
}

func TestWithTransactionCommitsOnSuccess(t *testing.T) {
	tm, mock := newMockTM(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `docs`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tm.WithTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE `docs` SET `title` = ?", "x")
		return err
	})
	require.NoError(t, err)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	tm, mock := newMockTM(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := tm.WithTransaction(func(tx *sql.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestInTransactionJoinsExistingTx(t *testing.T) {
	tm, mock := newMockTM(t)
	// A single Begin/Commit pair: the nested call joins, it never opens its own
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `docs`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tm.InTransaction(context.Background(), func(ctx context.Context) error {
		require.NotNil(t, tm.ExtractTx(ctx))
		return tm.InTransaction(ctx, func(inner context.Context) error {
			_, err := tm.Querier(inner).ExecContext(inner, "UPDATE `docs` SET `title` = ?", "x")
			return err
		})
	})
	require.NoError(t, err)
}

func TestInTransactionOwnsWhenContextIsBare(t *testing.T) {
	tm, mock := newMockTM(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := tm.InTransaction(context.Background(), func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestWithRetryRecoversFromDeadlock(t *testing.T) {
	tm, mock := newMockTM(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err := tm.WithRetry(func(tx *sql.Tx) error {
		attempts++
		if attempts == 1 {
			return errors.New("Error 1213: Deadlock found when trying to get lock")
		}
		return nil
	}, 3)
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	tm, mock := newMockTM(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	boom := errors.New("syntax error")
	err := tm.WithRetry(func(tx *sql.Tx) error {
		attempts++
		return boom
	}, 3)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, attempts)
}

func TestWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	tm, mock := newMockTM(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := tm.WithRetry(func(tx *sql.Tx) error {
		return errors.New("Lock wait timeout exceeded")
	}, 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 2 retries")
}

func TestQuerierFallsBackToPool(t *testing.T) {
	tm, mock := newMockTM(t)
	// No Begin expected: without a tx in ctx the pooled connection serves
	mock.ExpectExec("UPDATE `docs`").WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.Nil(t, tm.ExtractTx(ctx))
	_, err := tm.Querier(ctx).ExecContext(ctx, "UPDATE `docs` SET `title` = ?", "x")
	require.NoError(t, err)
}

func TestIsDeadlock(t *testing.T) {
	require.False(t, isDeadlock(nil))
	require.False(t, isDeadlock(errors.New("connection refused")))
	require.True(t, isDeadlock(errors.New("Error 1213: Deadlock found")))
	require.True(t, isDeadlock(errors.New("Error 1205: Lock wait timeout exceeded")))
	require.True(t, isDeadlock(errors.New("deadlock detected")))
}
