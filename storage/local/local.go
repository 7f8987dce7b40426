// Package local is the single-device fallback backend: each user's whole
// collection is serialized as one JSON blob stored under a fixed key in a
// sqlite key/value table and rewritten on every change. No remote
// collaborator is involved.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sujal03/ProtonHub-TaskManger/schema"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS collections (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`

// Store persists task collections in a local sqlite file.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the sqlite file at path and initializes the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(kvSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DefaultPath returns the sqlite file location under the XDG data directory.
func DefaultPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}

	appDir := filepath.Join(dataDir, "protonhub")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(appDir, "tasks.db"), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func collectionKey(userID string) string {
	return "tasks:" + userID
}

func (s *Store) load(ctx context.Context, userID string) ([]schema.Row, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM collections WHERE key = ?", collectionKey(userID)).Scan(&blob)
	if err == sql.ErrNoRows {
		return []schema.Row{}, nil
	}
	if err != nil {
		return nil, err
	}
	var rows []schema.Row
	if err := sonic.Unmarshal(blob, &rows); err != nil {
		return nil, fmt.Errorf("corrupt collection blob for %s: %w", userID, err)
	}
	return rows, nil
}

func (s *Store) save(ctx context.Context, userID string, rows []schema.Row) error {
	blob, err := sonic.Marshal(rows)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, collectionKey(userID), blob)
	return err
}

// ListRows returns all task rows for the provided user.
func (s *Store) ListRows(ctx context.Context, userID string) ([]schema.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, userID)
}

// InsertRow assigns an id and creation timestamp, appends the row to the
// collection blob and rewrites it.
func (s *Store) InsertRow(ctx context.Context, userID string, row schema.Row) (schema.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.load(ctx, userID)
	if err != nil {
		return schema.Row{}, err
	}
	row.ID = uuid.NewString()
	row.UserID = userID
	row.CreatedAt = time.Now().UTC()
	rows = append(rows, row)
	if err := s.save(ctx, userID, rows); err != nil {
		return schema.Row{}, err
	}
	return row, nil
}

// UpdateRow replaces the stored row with the same id and rewrites the blob.
func (s *Store) UpdateRow(ctx context.Context, userID string, row schema.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	for i := range rows {
		if rows[i].ID == row.ID {
			row.UserID = userID
			row.CreatedAt = rows[i].CreatedAt
			rows[i] = row
			return s.save(ctx, userID, rows)
		}
	}
	return fmt.Errorf("update task %s: no such row", row.ID)
}

// DeleteRow removes the row with the given id and rewrites the blob.
func (s *Store) DeleteRow(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	for i := range rows {
		if rows[i].ID == id {
			rows = append(rows[:i], rows[i+1:]...)
			return s.save(ctx, userID, rows)
		}
	}
	return fmt.Errorf("delete task %s: no such row", id)
}
