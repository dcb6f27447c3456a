package repository

import (
	"context"

	"pmt/backend/internal/audit/domain"
	"pmt/backend/internal/db"
)

const savepoint = "task_change"

type PostgresRepository struct {
	db db.DBTX
	// inTx is true when db is a transaction; Append then guards each insert with a savepoint.
	inTx bool
}

// NewPostgresRepository returns a change record repository on the connection pool.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// NewTxRepository returns a change record repository bound to an open transaction.
// A failed insert is rolled back to a savepoint so the rest of the transaction can still commit.
func NewTxRepository(tx db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: tx, inTx: true}
}

// Append inserts one change record.
func (r *PostgresRepository) Append(ctx context.Context, c *domain.ChangeRecord) (err error) {
	if r.inTx {
		if _, err := r.db.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			return err
		}
		defer func() {
			if err != nil {
				_, _ = r.db.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint)
				return
			}
			_, err = r.db.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint)
		}()
	}
	return r.db.QueryRowContext(ctx,
		`INSERT INTO task_changes (task_id, changed_by, field_name, old_value, new_value, changed_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		c.TaskID, c.ChangedBy, c.FieldName, c.OldValue, c.NewValue, c.ChangedAt).Scan(&c.ID)
}

// ListByTask returns the task's history ordered by insertion.
func (r *PostgresRepository) ListByTask(ctx context.Context, taskID int64) ([]*domain.ChangeRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, task_id, changed_by, field_name, old_value, new_value, changed_at
		 FROM task_changes WHERE task_id = $1 ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.ChangeRecord
	for rows.Next() {
		var c domain.ChangeRecord
		if err := rows.Scan(&c.ID, &c.TaskID, &c.ChangedBy, &c.FieldName, &c.OldValue, &c.NewValue, &c.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
