// Package postgres is an alternate remote backend over PostgreSQL. It keeps
// the same constrained schema as the table-storage binding: status as text
// and priority packed together with the category in one column, so the shared
// codec applies unchanged.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sujal03/ProtonHub-TaskManger/schema"
)

// Store is a PostgreSQL-backed task row store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store using the provided connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureTable creates the todos table if it doesn't exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS todos (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'active',
			priority    TEXT NOT NULL DEFAULT 'medium:other',
			due_date    TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_todos_user ON todos(user_id)`)
	return err
}

// ListRows retrieves all task rows for the provided user, newest first.
func (s *Store) ListRows(ctx context.Context, userID string) ([]schema.Row, error) {
	result, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, description, status, priority, due_date, created_at
		FROM todos WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", userID, err)
	}
	defer result.Close()

	rows := []schema.Row{}
	for result.Next() {
		var r schema.Row
		if err := result.Scan(&r.ID, &r.UserID, &r.Title, &r.Description, &r.Status, &r.Priority, &r.DueDate, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		rows = append(rows, r)
	}
	return rows, result.Err()
}

// InsertRow persists a new row and returns it with the assigned id and the
// server-side creation timestamp.
func (s *Store) InsertRow(ctx context.Context, userID string, row schema.Row) (schema.Row, error) {
	row.ID = uuid.Must(uuid.NewV7()).String()
	row.UserID = userID

	var created time.Time
	err := s.pool.QueryRow(ctx, `
		INSERT INTO todos (id, user_id, title, description, status, priority, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		row.ID, row.UserID, row.Title, row.Description, row.Status, row.Priority, row.DueDate).
		Scan(&created)
	if err != nil {
		return schema.Row{}, fmt.Errorf("create task: %w", err)
	}
	row.CreatedAt = created
	return row, nil
}

// UpdateRow replaces the mutable columns of the stored row.
func (s *Store) UpdateRow(ctx context.Context, userID string, row schema.Row) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE todos SET title = $1, description = $2, status = $3, priority = $4, due_date = $5
		WHERE id = $6 AND user_id = $7`,
		row.Title, row.Description, row.Status, row.Priority, row.DueDate, row.ID, userID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", row.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update task %s: no such row", row.ID)
	}
	return nil
}

// DeleteRow removes the row with the given id.
func (s *Store) DeleteRow(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM todos WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete task %s: no such row", id)
	}
	return nil
}
