package repository

import (
	"context"

	"pmt/backend/internal/membership/domain"
)

// Repository defines persistence for project memberships.
// Lookups of a single membership return an error wrapping apperr.ErrNotFound when the row is absent.
type Repository interface {
	GetByProjectAndUser(ctx context.Context, projectID, userID int64) (*domain.Membership, error)
	ListByProject(ctx context.Context, projectID int64) ([]*domain.Membership, error)
	ListByUser(ctx context.Context, userID int64) ([]*domain.Membership, error)
	// Create inserts m and sets its ID and CreatedAt. A second membership for the same pair fails with apperr.ErrValidation.
	Create(ctx context.Context, m *domain.Membership) error
	UpdateRole(ctx context.Context, projectID, userID int64, role domain.Role) (*domain.Membership, error)
}
