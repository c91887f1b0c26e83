// Package chat provides append-only conversation transcript storage.
package chat

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Message is one persisted transcript entry. Role is "user" or
// "assistant".
type Message struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"-"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages transcript persistence in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a chat store on the given database handle.
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
		CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id, id);
	`)
	return err
}

// Append persists one transcript entry.
func (s *Store) Append(userID uuid.UUID, role, content string) (*Message, error) {
	if role != "user" && role != "assistant" {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	now := time.Now().UTC()

	res, err := s.db.Exec(
		`INSERT INTO chat_messages (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		userID.String(), role, content, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	id, _ := res.LastInsertId()

	return &Message{ID: id, UserID: userID, Role: role, Content: content, CreatedAt: now}, nil
}

// ListRecent returns the most recent limit messages for a user in
// chronological order.
func (s *Store) ListRecent(userID uuid.UUID, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, role, content, created_at FROM (
			SELECT id, role, content, created_at
			FROM chat_messages
			WHERE user_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m := &Message{UserID: userID}
		var createdStr string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &createdStr); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Clear removes a user's entire transcript.
func (s *Store) Clear(userID uuid.UUID) error {
	_, err := s.db.Exec(`DELETE FROM chat_messages WHERE user_id = ?`, userID.String())
	return err
}
