package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"pmt/backend/internal/db"
	"pmt/backend/internal/platform/apperr"
	"pmt/backend/internal/user/domain"
)

const userColumns = `id, username, email, password_hash, created_at`

// PostgresRepository implements Repository using hand-written SQL over db.DBTX.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a user repository bound to conn.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the user by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user", id)
	}
	return u, err
}

// GetByEmail returns the user by email, compared after normalization.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", email, apperr.ErrNotFound)
	}
	return u, err
}

// Create persists a new user.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	u.Email = domain.NormalizeEmail(u.Email)
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id, created_at`,
		u.Username, u.Email, u.PasswordHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Validation("email " + u.Email + " is already registered")
		}
		return err
	}
	return nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("user", id)
	}
	return nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
