package repository

import (
	"context"

	"pmt/backend/internal/task/domain"
)

// Repository defines persistence for tasks.
// Writes are column-scoped so that concurrent operations touching different columns of the same task all persist.
type Repository interface {
	// Create inserts t and sets ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, t *domain.Task) error
	// GetByID returns the task or an error wrapping apperr.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*domain.Task, error)
	// GetForUpdate is GetByID that also locks the row for the rest of the transaction.
	// Mutations read through it so their diff is taken against committed values.
	GetForUpdate(ctx context.Context, id int64) (*domain.Task, error)
	// ListByProject returns a project's tasks ordered by id.
	ListByProject(ctx context.Context, projectID int64) ([]*domain.Task, error)
	ListByProjectAndStatus(ctx context.Context, projectID int64, status domain.Status) ([]*domain.Task, error)
	// UpdateFields writes only the named editable fields (audit field names: name, description, dueDate,
	// completionDate, priority, status) and bumps updated_at. An empty list only bumps updated_at.
	UpdateFields(ctx context.Context, t *domain.Task, fields []string) error
	// UpdateAssignee writes the assignee column only.
	UpdateAssignee(ctx context.Context, id, assigneeID int64) error
	// UpdateStatus writes the status column only.
	UpdateStatus(ctx context.Context, id int64, status domain.Status) error
}
