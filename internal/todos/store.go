// Package todos provides task list storage.
package todos

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const todoColumns = "id, user_id, task, due_date, completed, completed_at, created_at"

// Todo is one task. DueDate is a day key ("2006-01-02") or empty.
type Todo struct {
	ID          int64      `json:"id"`
	UserID      uuid.UUID  `json:"-"`
	Task        string     `json:"task"`
	DueDate     string     `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Store manages todo persistence in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a todo store on the given database handle.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS todos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			task TEXT NOT NULL,
			due_date TEXT,
			completed INTEGER NOT NULL DEFAULT 0,
			completed_at TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_todos_user ON todos(user_id, completed);
	`)
	return err
}

// Create adds a new task. dueDate is a pre-validated day key or empty.
func (s *Store) Create(userID uuid.UUID, task, dueDate string) (*Todo, error) {
	if task == "" {
		return nil, fmt.Errorf("task is required")
	}
	now := time.Now().UTC()

	res, err := s.db.Exec(
		`INSERT INTO todos (user_id, task, due_date, completed, created_at) VALUES (?, ?, ?, 0, ?)`,
		userID.String(), task, nullStr(dueDate), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	id, _ := res.LastInsertId()

	return &Todo{ID: id, UserID: userID, Task: task, DueDate: dueDate, CreatedAt: now}, nil
}

// List returns a user's tasks: open first, then by due date, then
// newest first.
func (s *Store) List(userID uuid.UUID, includeCompleted bool) ([]*Todo, error) {
	q := `SELECT ` + todoColumns + ` FROM todos WHERE user_id = ?`
	if !includeCompleted {
		q += ` AND completed = 0`
	}
	q += ` ORDER BY completed, due_date, created_at DESC`

	rows, err := s.db.Query(q, userID.String())
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return s.scanTodos(rows)
}

// ListIncomplete returns a user's open tasks.
func (s *Store) ListIncomplete(userID uuid.UUID) ([]*Todo, error) {
	return s.List(userID, false)
}

// Get retrieves one task, scoped to its owner.
func (s *Store) Get(userID uuid.UUID, id int64) (*Todo, error) {
	return s.scanTodo(s.db.QueryRow(
		`SELECT `+todoColumns+` FROM todos WHERE user_id = ? AND id = ?`,
		userID.String(), id))
}

// Complete marks a task done. Completing an already-done task is a
// no-op that keeps the original completion time.
func (s *Store) Complete(userID uuid.UUID, id int64) (*Todo, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`UPDATE todos SET completed = 1, completed_at = ? WHERE user_id = ? AND id = ? AND completed = 0`,
		now, userID.String(), id)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Distinguish missing from already complete.
		t, err := s.Get(userID, id)
		if err != nil {
			return nil, fmt.Errorf("todo not found: %d", id)
		}
		return t, nil
	}
	return s.Get(userID, id)
}

// Update changes a task's text and due date.
func (s *Store) Update(userID uuid.UUID, id int64, task, dueDate string) (*Todo, error) {
	if task == "" {
		return nil, fmt.Errorf("task is required")
	}
	res, err := s.db.Exec(
		`UPDATE todos SET task = ?, due_date = ? WHERE user_id = ? AND id = ?`,
		task, nullStr(dueDate), userID.String(), id)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, fmt.Errorf("todo not found: %d", id)
	}
	return s.Get(userID, id)
}

// Delete removes a task.
func (s *Store) Delete(userID uuid.UUID, id int64) error {
	res, err := s.db.Exec(
		`DELETE FROM todos WHERE user_id = ? AND id = ?`,
		userID.String(), id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("todo not found: %d", id)
	}
	return nil
}

// --- scan helpers ---

func (s *Store) scanTodo(row *sql.Row) (*Todo, error) {
	var t Todo
	var idStr, createdStr string
	var dueDate, completedAt sql.NullString

	err := row.Scan(&t.ID, &idStr, &t.Task, &dueDate, &t.Completed, &completedAt, &createdStr)
	if err != nil {
		return nil, err
	}
	return populateTodo(&t, idStr, dueDate, completedAt, createdStr)
}

func (s *Store) scanTodos(rows *sql.Rows) ([]*Todo, error) {
	var todos []*Todo
	for rows.Next() {
		var t Todo
		var idStr, createdStr string
		var dueDate, completedAt sql.NullString

		if err := rows.Scan(&t.ID, &idStr, &t.Task, &dueDate, &t.Completed, &completedAt, &createdStr); err != nil {
			return nil, err
		}
		pt, err := populateTodo(&t, idStr, dueDate, completedAt, createdStr)
		if err != nil {
			return nil, err
		}
		todos = append(todos, pt)
	}
	return todos, rows.Err()
}

func populateTodo(t *Todo, idStr string, dueDate, completedAt sql.NullString, createdStr string) (*Todo, error) {
	var err error
	t.UserID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	t.DueDate = dueDate.String
	if completedAt.Valid {
		at, err := time.Parse(time.RFC3339, completedAt.String)
		if err == nil {
			t.CompletedAt = &at
		}
	}
	t.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return t, nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
