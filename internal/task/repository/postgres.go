package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	auditdomain "pmt/backend/internal/audit/domain"
	"pmt/backend/internal/db"
	"pmt/backend/internal/platform/apperr"
	"pmt/backend/internal/task/domain"
)

const taskColumns = `t.id, t.project_id, t.name, t.description, t.due_date, t.completion_date,
	t.priority, t.status, t.assignee_id, t.created_at, t.updated_at`

// editableColumns maps the editable fields to their columns, in the order UpdateFields writes them.
var editableColumns = []struct {
	field  string
	column string
	value  func(t *domain.Task) any
}{
	{auditdomain.FieldName, "name", func(t *domain.Task) any { return t.Name }},
	{auditdomain.FieldDescription, "description", func(t *domain.Task) any { return t.Description }},
	{auditdomain.FieldDueDate, "due_date", func(t *domain.Task) any { return t.DueDate }},
	{auditdomain.FieldCompletionDate, "completion_date", func(t *domain.Task) any { return nullDate(t) }},
	{auditdomain.FieldPriority, "priority", func(t *domain.Task) any { return string(t.Priority) }},
	{auditdomain.FieldStatus, "status", func(t *domain.Task) any { return string(t.Status) }},
}

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a task repository that uses conn for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists a new task.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Task) error {
	return r.db.QueryRowContext(ctx,
		`INSERT INTO tasks (project_id, name, description, due_date, completion_date, priority, status, assignee_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`,
		t.ProjectID, t.Name, t.Description, t.DueDate, nullDate(t), string(t.Priority), string(t.Status), nullAssignee(t),
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// GetByID returns the task for id.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("task", id)
	}
	return t, err
}

// GetForUpdate returns the task and locks its row until the surrounding transaction ends.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("task", id)
	}
	return t, err
}

// ListByProject returns all tasks of a project ordered by id.
func (r *PostgresRepository) ListByProject(ctx context.Context, projectID int64) ([]*domain.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.project_id = $1 ORDER BY t.id`, projectID)
}

// ListByProjectAndStatus returns the tasks of a project in the given status.
func (r *PostgresRepository) ListByProjectAndStatus(ctx context.Context, projectID int64, status domain.Status) ([]*domain.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.project_id = $1 AND t.status = $2 ORDER BY t.id`,
		projectID, string(status))
}

// UpdateFields writes the named editable fields of t and bumps updated_at. Other columns are untouched.
func (r *PostgresRepository) UpdateFields(ctx context.Context, t *domain.Task, fields []string) error {
	set := make([]string, 0, len(fields)+1)
	args := []any{t.ID}
	for _, c := range editableColumns {
		if !slices.Contains(fields, c.field) {
			continue
		}
		args = append(args, c.value(t))
		set = append(set, fmt.Sprintf("%s = $%d", c.column, len(args)))
	}
	if len(set) != len(fields) {
		return fmt.Errorf("update task %d: unknown field in %v", t.ID, fields)
	}
	set = append(set, "updated_at = now()")
	return r.exec(ctx, t.ID, `UPDATE tasks SET `+strings.Join(set, ", ")+` WHERE id = $1`, args...)
}

// UpdateAssignee sets the task's assignee.
func (r *PostgresRepository) UpdateAssignee(ctx context.Context, id, assigneeID int64) error {
	return r.exec(ctx, id, `UPDATE tasks SET assignee_id = $2, updated_at = now() WHERE id = $1`, id, assigneeID)
}

// UpdateStatus sets the task's status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status domain.Status) error {
	return r.exec(ctx, id, `UPDATE tasks SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
}

func (r *PostgresRepository) exec(ctx context.Context, id int64, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("task", id)
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*domain.Task, error) {
	var (
		t          domain.Task
		completion sql.NullTime
		assignee   sql.NullInt64
		priority   string
		status     string
	)
	err := s.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.DueDate, &completion,
		&priority, &status, &assignee, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.DueDate = domain.Date(t.DueDate)
	t.Priority = domain.Priority(priority)
	t.Status = domain.Status(status)
	if completion.Valid {
		d := domain.Date(completion.Time)
		t.CompletionDate = &d
	}
	if assignee.Valid {
		a := assignee.Int64
		t.AssigneeID = &a
	}
	return &t, nil
}

func nullDate(t *domain.Task) sql.NullTime {
	if t.CompletionDate == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t.CompletionDate, Valid: true}
}

func nullAssignee(t *domain.Task) sql.NullInt64 {
	if t.AssigneeID == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *t.AssigneeID, Valid: true}
}
