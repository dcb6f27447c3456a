package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmt/backend/internal/platform/apperr"
	"pmt/backend/internal/user/domain"
)

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

func TestGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "created_at"}).
			AddRow(int64(5), "alice", "alice@example.com", "h", now))

	u, err := repo.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)

	u, err := repo.GetByID(context.Background(), 9)
	assert.Nil(t, u)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Contains(t, err.Error(), "user 9")
}

func TestGetByEmail_Normalizes(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("bob@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), " Bob@Example.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice", "alice@example.com", "h").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))

	u := &domain.User{Username: "alice", Email: "Alice@example.com", PasswordHash: "h"}
	require.NoError(t, repo.Create(context.Background(), u))
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
}

func TestCreate_DuplicateEmail(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &domain.User{Username: "a", Email: "a@b.co", PasswordHash: "h"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreate_OtherError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(errors.New("conn reset"))

	err := repo.Create(context.Background(), &domain.User{Username: "a", Email: "a@b.co", PasswordHash: "h"})
	require.Error(t, err)
	assert.Nil(t, apperr.Kind(err))
}

func TestUpdatePasswordHash_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE users SET password_hash = \$2 WHERE id = \$1`).
		WithArgs(int64(3), "new").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePasswordHash(context.Background(), 3, "new")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
