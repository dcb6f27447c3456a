package repository

import (
	"context"

	"pmt/backend/internal/user/domain"
)

// Repository defines persistence for users. Missing users are reported with an error wrapping apperr.ErrNotFound.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create inserts u and sets ID and CreatedAt. A duplicate email fails with apperr.ErrValidation.
	Create(ctx context.Context, u *domain.User) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}
