// Package mantras provides storage for short personal affirmations.
package mantras

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Mantra is one affirmation. Ord controls display order; ties break by
// creation time.
type Mantra struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"-"`
	Content   string    `json:"content"`
	Ord       int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages mantra persistence in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a mantra store on the given database handle.
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
		CREATE TABLE IF NOT EXISTS mantras (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			ord INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_mantras_user ON mantras(user_id, ord);
	`)
	return err
}

// Add appends a mantra at the end of the user's list.
func (s *Store) Add(userID uuid.UUID, content string) (*Mantra, error) {
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	now := time.Now().UTC()

	var maxOrd sql.NullInt64
	_ = s.db.QueryRow(`SELECT MAX(ord) FROM mantras WHERE user_id = ?`, userID.String()).Scan(&maxOrd)
	ord := 0
	if maxOrd.Valid {
		ord = int(maxOrd.Int64) + 1
	}

	res, err := s.db.Exec(
		`INSERT INTO mantras (user_id, content, ord, created_at) VALUES (?, ?, ?, ?)`,
		userID.String(), content, ord, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	id, _ := res.LastInsertId()

	return &Mantra{ID: id, UserID: userID, Content: content, Ord: ord, CreatedAt: now}, nil
}

// List returns a user's mantras in display order.
func (s *Store) List(userID uuid.UUID) ([]*Mantra, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, content, ord, created_at FROM mantras WHERE user_id = ? ORDER BY ord, created_at`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var mantras []*Mantra
	for rows.Next() {
		var m Mantra
		var idStr, createdStr string
		if err := rows.Scan(&m.ID, &idStr, &m.Content, &m.Ord, &createdStr); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m.UserID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse user id: %w", err)
		}
		m.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		mantras = append(mantras, &m)
	}
	return mantras, rows.Err()
}

// Update changes a mantra's content and position.
func (s *Store) Update(userID uuid.UUID, id int64, content string, ord int) (*Mantra, error) {
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	res, err := s.db.Exec(
		`UPDATE mantras SET content = ?, ord = ? WHERE user_id = ? AND id = ?`,
		content, ord, userID.String(), id)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, fmt.Errorf("mantra not found: %d", id)
	}

	var m Mantra
	var idStr, createdStr string
	err = s.db.QueryRow(
		`SELECT id, user_id, content, ord, created_at FROM mantras WHERE id = ?`, id).
		Scan(&m.ID, &idStr, &m.Content, &m.Ord, &createdStr)
	if err != nil {
		return nil, err
	}
	m.UserID, _ = uuid.Parse(idStr)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	return &m, nil
}

// Delete removes a mantra.
func (s *Store) Delete(userID uuid.UUID, id int64) error {
	res, err := s.db.Exec(
		`DELETE FROM mantras WHERE user_id = ? AND id = ?`,
		userID.String(), id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("mantra not found: %d", id)
	}
	return nil
}
