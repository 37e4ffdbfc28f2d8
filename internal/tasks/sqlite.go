package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	completed_at INTEGER,
	priority INTEGER NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tasks_active ON tasks(completed, id);
`

// SQLiteStore persists tasks in a SQLite database
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns the default database location
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "voxtask.db"
	}
	return filepath.Join(home, ".voxtask", "tasks.db")
}

// OpenSQLite opens (and creates if needed) the database at path.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a second pooled connection would see a different :memory: database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create inserts a new incomplete task
func (s *SQLiteStore) Create(ctx context.Context, text string, priority Priority, category string) (Task, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (text, completed, created_at, priority, category) VALUES (?, 0, ?, ?, ?)`,
		text, now.UnixMilli(), int(priority), category)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, fmt.Errorf("insert task id: %w", err)
	}
	return Task{
		ID:        id,
		Text:      text,
		CreatedAt: time.UnixMilli(now.UnixMilli()),
		Priority:  priority,
		Category:  category,
	}, nil
}

// ToggleComplete flips the completed flag
func (s *SQLiteStore) ToggleComplete(ctx context.Context, id int64) (Task, error) {
	t, err := s.get(ctx, id)
	if err != nil {
		return Task{}, err
	}

	var completedAt sql.NullInt64
	if !t.Completed {
		completedAt = sql.NullInt64{Int64: s.now().UnixMilli(), Valid: true}
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = ?, completed_at = ? WHERE id = ?`,
		boolToInt(!t.Completed), completedAt, id); err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	return s.get(ctx, id)
}

// Delete removes a task
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ClearAll removes every task
func (s *SQLiteStore) ClearAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return int(n), nil
}

// ListActive returns incomplete tasks ordered by creation
func (s *SQLiteStore) ListActive(ctx context.Context) ([]Task, error) {
	return s.query(ctx, `SELECT id, text, completed, created_at, completed_at, priority, category
		FROM tasks WHERE completed = 0 ORDER BY id ASC`)
}

// List returns all tasks ordered by creation
func (s *SQLiteStore) List(ctx context.Context) ([]Task, error) {
	return s.query(ctx, `SELECT id, text, completed, created_at, completed_at, priority, category
		FROM tasks ORDER BY id ASC`)
}

func (s *SQLiteStore) get(ctx context.Context, id int64) (Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, text, completed, created_at, completed_at, priority, category
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrTaskNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) query(ctx context.Context, q string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (Task, error) {
	var (
		t           Task
		completed   int
		createdAt   int64
		completedAt sql.NullInt64
		priority    int
	)
	if err := row.Scan(&t.ID, &t.Text, &completed, &createdAt, &completedAt, &priority, &t.Category); err != nil {
		return Task{}, err
	}
	t.Completed = completed != 0
	t.CreatedAt = time.UnixMilli(createdAt)
	if completedAt.Valid {
		ts := time.UnixMilli(completedAt.Int64)
		t.CompletedAt = &ts
	}
	t.Priority = Priority(priority)
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
