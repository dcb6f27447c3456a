package repository

import (
	"context"
	"database/sql"
	"errors"

	"pmt/backend/internal/db"
	"pmt/backend/internal/platform/apperr"
	"pmt/backend/internal/project/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a project repository that uses conn for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the project for id.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, start_date, owner_id, created_at FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("project", id)
	}
	return p, err
}

// ListByMember returns the projects userID belongs to.
func (r *PostgresRepository) ListByMember(ctx context.Context, userID int64) ([]*domain.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.description, p.start_date, p.owner_id, p.created_at
		 FROM projects p JOIN project_memberships m ON m.project_id = p.id
		 WHERE m.user_id = $1 ORDER BY p.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create persists the project. Validation is the caller's job.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Project) error {
	var start sql.NullTime
	if !p.StartDate.IsZero() {
		start = sql.NullTime{Time: p.StartDate, Valid: true}
	}
	return r.db.QueryRowContext(ctx,
		`INSERT INTO projects (name, description, start_date, owner_id) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		p.Name, p.Description, start, p.OwnerID).Scan(&p.ID, &p.CreatedAt)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (*domain.Project, error) {
	var (
		p     domain.Project
		start sql.NullTime
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &start, &p.OwnerID, &p.CreatedAt); err != nil {
		return nil, err
	}
	if start.Valid {
		p.StartDate = start.Time
	}
	return &p, nil
}
