package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmt/backend/internal/platform/apperr"
	"pmt/backend/internal/task/domain"
)

var taskCols = []string{"id", "project_id", "name", "description", "due_date", "completion_date",
	"priority", "status", "assignee_id", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return NewPostgresRepository(conn), mock
}

func due() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

func TestCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO tasks`).
		WithArgs(int64(10), "Docs", "", due(), nil, "LOW", "TODO", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(3), now, now))

	tk := &domain.Task{ProjectID: 10, Name: "Docs", DueDate: due(), Priority: domain.PriorityLow, Status: domain.StatusTodo}
	require.NoError(t, repo.Create(context.Background(), tk))
	assert.Equal(t, int64(3), tk.ID)
}

func TestGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	completed := time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM tasks t WHERE t.id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow(int64(3), int64(10), "Docs", "d", due(), completed, "HIGH", "DONE", int64(7), now, now))

	tk, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, tk.Status)
	assert.Equal(t, domain.PriorityHigh, tk.Priority)
	require.NotNil(t, tk.CompletionDate)
	assert.Equal(t, completed, *tk.CompletionDate)
	require.NotNil(t, tk.AssigneeID)
	assert.Equal(t, int64(7), *tk.AssigneeID)
}

func TestGetByID_NullableColumns(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM tasks t WHERE t.id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow(int64(3), int64(10), "Docs", "", due(), nil, "LOW", "TODO", nil, now, now))

	tk, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, tk.CompletionDate)
	assert.Nil(t, tk.AssigneeID)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`FROM tasks t WHERE t.id = \$1`).WithArgs(int64(4)).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 4)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListByProjectAndStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`WHERE t.project_id = \$1 AND t.status = \$2`).
		WithArgs(int64(10), "IN_PROGRESS").
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow(int64(1), int64(10), "A", "", due(), nil, "LOW", "IN_PROGRESS", nil, now, now))

	list, err := repo.ListByProjectAndStatus(context.Background(), 10, domain.StatusInProgress)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0].Name)
}

func TestGetForUpdateLocksRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM tasks t WHERE t.id = \$1 FOR UPDATE`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow(int64(3), int64(10), "Docs", "", due(), nil, "LOW", "TODO", nil, now, now))

	tk, err := repo.GetForUpdate(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tk.ID)
}

func TestGetForUpdate_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(4)).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetForUpdate(context.Background(), 4)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListByProject(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`WHERE t.project_id = \$1 ORDER BY t.id`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow(int64(1), int64(10), "A", "", due(), nil, "LOW", "TODO", nil, now, now).
			AddRow(int64(2), int64(10), "B", "", due(), nil, "HIGH", "DONE", nil, now, now))

	list, err := repo.ListByProject(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "B", list[1].Name)
}

func TestUpdateAssigneeTouchesOnlyAssignee(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE tasks SET assignee_id = \$2, updated_at = now\(\) WHERE id = \$1`).
		WithArgs(int64(3), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateAssignee(context.Background(), 3, 7))
}

func TestUpdateStatusTouchesOnlyStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE tasks SET status = \$2, updated_at = now\(\) WHERE id = \$1`).
		WithArgs(int64(3), "DONE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), 3, domain.StatusDone))
}

func TestUpdateFields_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE tasks SET name = \$2`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateFields(context.Background(), &domain.Task{ID: 9, Name: "x", DueDate: due(), Priority: "LOW", Status: "TODO"}, []string{"name"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateFieldsWritesOnlyNamedColumns(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`^UPDATE tasks SET name = \$2, priority = \$3, updated_at = now\(\) WHERE id = \$1$`).
		WithArgs(int64(7), "new", "HIGH").
		WillReturnResult(sqlmock.NewResult(0, 1))

	tk := &domain.Task{ID: 7, Name: "new", DueDate: due(), Priority: domain.PriorityHigh, Status: domain.StatusTodo}
	// Field order in the call does not matter; columns follow a fixed order.
	require.NoError(t, repo.UpdateFields(context.Background(), tk, []string{"priority", "name"}))
}

func TestUpdateFieldsCompletionDateNull(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`^UPDATE tasks SET completion_date = \$2, updated_at = now\(\) WHERE id = \$1$`).
		WithArgs(int64(7), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateFields(context.Background(), &domain.Task{ID: 7}, []string{"completionDate"}))
}

func TestUpdateFieldsNoneOnlyBumpsUpdatedAt(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`^UPDATE tasks SET updated_at = now\(\) WHERE id = \$1$`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateFields(context.Background(), &domain.Task{ID: 7}, nil))
}

func TestUpdateFieldsRejectsUnknownField(t *testing.T) {
	repo, _ := newMockRepo(t)
	err := repo.UpdateFields(context.Background(), &domain.Task{ID: 7}, []string{"assignee"})
	assert.Error(t, err)
}
