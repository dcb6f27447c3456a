package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmt/backend/internal/audit/domain"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, func(inTx bool) *PostgresRepository) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return mock, func(inTx bool) *PostgresRepository {
		if inTx {
			return NewTxRepository(conn)
		}
		return NewPostgresRepository(conn)
	}
}

func record() *domain.ChangeRecord {
	return &domain.ChangeRecord{
		TaskID: 7, ChangedBy: 2, FieldName: domain.FieldName,
		OldValue: "old", NewValue: "new", ChangedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestAppend_Pool(t *testing.T) {
	mock, repo := newMock(t)
	c := record()
	mock.ExpectQuery(`INSERT INTO task_changes`).
		WithArgs(int64(7), int64(2), "name", "old", "new", c.ChangedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	require.NoError(t, repo(false).Append(context.Background(), c))
	assert.Equal(t, int64(11), c.ID)
}

func TestAppend_TxReleasesSavepoint(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectExec(`SAVEPOINT task_change`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO task_changes`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(`RELEASE SAVEPOINT task_change`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo(true).Append(context.Background(), record()))
}

func TestAppend_TxRollsBackToSavepointOnFailure(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectExec(`SAVEPOINT task_change`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO task_changes`).WillReturnError(errors.New("check violation"))
	mock.ExpectExec(`ROLLBACK TO SAVEPOINT task_change`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo(true).Append(context.Background(), record())
	assert.EqualError(t, err, "check violation")
}

func TestListByTask(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM task_changes WHERE task_id = \$1 ORDER BY id`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "task_id", "changed_by", "field_name", "old_value", "new_value", "changed_at"}).
			AddRow(int64(1), int64(7), int64(2), "name", "a", "b", now).
			AddRow(int64(2), int64(7), int64(2), "completionDate", "null", "2024-01-01", now))

	list, err := repo(false).ListByTask(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "null", list[1].OldValue)
}
