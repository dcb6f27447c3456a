package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"pmt/backend/internal/db"
	"pmt/backend/internal/membership/domain"
	"pmt/backend/internal/platform/apperr"
)

const uniqueViolation = "23505"

const membershipColumns = `id, project_id, user_id, role, created_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a membership repository bound to the pool or to a transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByProjectAndUser returns the membership for the pair, or an ErrNotFound error when there is none.
func (r *PostgresRepository) GetByProjectAndUser(ctx context.Context, projectID, userID int64) (*domain.Membership, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM project_memberships WHERE project_id = $1 AND user_id = $2`,
		projectID, userID)
	m, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership of user %d in project %d: %w", userID, projectID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

// ListByProject returns the memberships of a project in insertion order.
func (r *PostgresRepository) ListByProject(ctx context.Context, projectID int64) ([]*domain.Membership, error) {
	return r.list(ctx, `SELECT `+membershipColumns+` FROM project_memberships WHERE project_id = $1 ORDER BY id`, projectID)
}

// ListByUser returns every membership held by a user.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Membership, error) {
	return r.list(ctx, `SELECT `+membershipColumns+` FROM project_memberships WHERE user_id = $1 ORDER BY project_id`, userID)
}

// Create inserts the membership and fills in ID and CreatedAt.
func (r *PostgresRepository) Create(ctx context.Context, m *domain.Membership) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO project_memberships (project_id, user_id, role) VALUES ($1, $2, $3) RETURNING id, created_at`,
		m.ProjectID, m.UserID, string(m.Role)).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.Validation(fmt.Sprintf("user %d is already a member of project %d", m.UserID, m.ProjectID))
		}
		return err
	}
	return nil
}

// UpdateRole sets the role of an existing membership and returns the updated row.
func (r *PostgresRepository) UpdateRole(ctx context.Context, projectID, userID int64, role domain.Role) (*domain.Membership, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE project_memberships SET role = $3 WHERE project_id = $1 AND user_id = $2 RETURNING `+membershipColumns,
		projectID, userID, string(role))
	m, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership of user %d in project %d: %w", userID, projectID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg int64) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMembership(s scanner) (*domain.Membership, error) {
	var (
		m    domain.Membership
		role string
	)
	if err := s.Scan(&m.ID, &m.ProjectID, &m.UserID, &role, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Role = domain.Role(role)
	return &m, nil
}
