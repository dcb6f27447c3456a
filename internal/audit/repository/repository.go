package repository

import (
	"context"

	"pmt/backend/internal/audit/domain"
)

// Repository is the append-only sink for task change records. It has no update or delete operation.
type Repository interface {
	// Append inserts c and sets its ID.
	Append(ctx context.Context, c *domain.ChangeRecord) error
	// ListByTask returns a task's change records, oldest first.
	ListByTask(ctx context.Context, taskID int64) ([]*domain.ChangeRecord, error)
}
