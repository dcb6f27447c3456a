package repository

import (
	"context"

	"pmt/backend/internal/project/domain"
)

// Repository defines persistence for projects.
type Repository interface {
	// GetByID returns the project or an error wrapping apperr.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*domain.Project, error)
	// ListByMember returns the projects in which userID holds any membership, oldest first.
	ListByMember(ctx context.Context, userID int64) ([]*domain.Project, error)
	// Create inserts p and sets ID and CreatedAt.
	Create(ctx context.Context, p *domain.Project) error
}
