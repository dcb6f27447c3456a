// Package store vends repositories bound either to the connection pool or to a single transaction.
package store

import (
	"context"
	"database/sql"

	auditrepo "pmt/backend/internal/audit/repository"
	"pmt/backend/internal/db"
	membershiprepo "pmt/backend/internal/membership/repository"
	projectrepo "pmt/backend/internal/project/repository"
	taskrepo "pmt/backend/internal/task/repository"
	userrepo "pmt/backend/internal/user/repository"
)

// Repos is one set of repositories sharing a connection or a transaction.
type Repos struct {
	Users       userrepo.Repository
	Projects    projectrepo.Repository
	Memberships membershiprepo.Repository
	Tasks       taskrepo.Repository
	Changes     auditrepo.Repository
}

// Store is the persistence entry point used by the services.
type Store interface {
	// Repos returns repositories for reads and single-statement writes outside a transaction.
	Repos() Repos
	// WithTx runs fn in one transaction. It commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

// Postgres is a Store backed by database/sql and the pgx driver.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a Store using conn.
func NewPostgres(conn *sql.DB) *Postgres {
	return &Postgres{db: conn}
}

func (p *Postgres) Repos() Repos {
	return Repos{
		Users:       userrepo.NewPostgresRepository(p.db),
		Projects:    projectrepo.NewPostgresRepository(p.db),
		Memberships: membershiprepo.NewPostgresRepository(p.db),
		Tasks:       taskrepo.NewPostgresRepository(p.db),
		Changes:     auditrepo.NewPostgresRepository(p.db),
	}
}

func (p *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	return db.WithTx(ctx, p.db, nil, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, Repos{
			Users:       userrepo.NewPostgresRepository(tx),
			Projects:    projectrepo.NewPostgresRepository(tx),
			Memberships: membershiprepo.NewPostgresRepository(tx),
			Tasks:       taskrepo.NewPostgresRepository(tx),
			Changes:     auditrepo.NewTxRepository(tx),
		})
	})
}
