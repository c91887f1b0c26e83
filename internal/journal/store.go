// Package journal provides daily check-in, gratitude, and journal
// entry storage.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	checkinColumns = "user_id, date, meditation_completed, meditation_duration, meditation_completed_at, gratitude_completed, gratitude_completed_at, journal_completed, journal_completed_at, created_at, updated_at"
	entryColumns   = "user_id, date, content, reflection, created_at, updated_at"

	// DayFormat is the canonical day-key layout for all per-day records.
	DayFormat = "2006-01-02"
)

// Checkin is the per-user, per-day practice completion record.
// Date is a day key in DayFormat.
type Checkin struct {
	UserID                uuid.UUID  `json:"-"`
	Date                  string     `json:"date"`
	MeditationCompleted   bool       `json:"meditation"`
	MeditationDuration    int        `json:"meditation_duration,omitempty"`
	MeditationCompletedAt *time.Time `json:"meditation_completed_at,omitempty"`
	GratitudeCompleted    bool       `json:"gratitude"`
	GratitudeCompletedAt  *time.Time `json:"gratitude_completed_at,omitempty"`
	JournalCompleted      bool       `json:"journal"`
	JournalCompletedAt    *time.Time `json:"journal_completed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// GratitudeEntry is one day's gratitude list.
type GratitudeEntry struct {
	UserID    uuid.UUID `json:"-"`
	Date      string    `json:"date"`
	Items     []string  `json:"items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is one day's journal entry. Repeated saves on the same day
// append to Content rather than creating a second record.
type Entry struct {
	UserID     uuid.UUID `json:"-"`
	Date       string    `json:"date"`
	Content    string    `json:"content"`
	Reflection string    `json:"reflection,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store manages journal persistence in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a journal store on the given database handle.
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
		CREATE TABLE IF NOT EXISTS daily_checkins (
			user_id TEXT NOT NULL,
			date TEXT NOT NULL,
			meditation_completed INTEGER NOT NULL DEFAULT 0,
			meditation_duration INTEGER,
			meditation_completed_at TEXT,
			gratitude_completed INTEGER NOT NULL DEFAULT 0,
			gratitude_completed_at TEXT,
			journal_completed INTEGER NOT NULL DEFAULT 0,
			journal_completed_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, date)
		);

		CREATE TABLE IF NOT EXISTS gratitude_entries (
			user_id TEXT NOT NULL,
			date TEXT NOT NULL,
			items TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, date)
		);

		CREATE TABLE IF NOT EXISTS journal_entries (
			user_id TEXT NOT NULL,
			date TEXT NOT NULL,
			content TEXT NOT NULL,
			reflection TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, date)
		);
	`)
	return err
}

// LogMeditation marks meditation complete on the day's check-in,
// creating the check-in if needed. Calling twice keeps one record; the
// later duration wins. durationMinutes <= 0 means not reported.
func (s *Store) LogMeditation(userID uuid.UUID, day string, durationMinutes int) (*Checkin, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	var dur sql.NullInt64
	if durationMinutes > 0 {
		dur = sql.NullInt64{Int64: int64(durationMinutes), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO daily_checkins (user_id, date, meditation_completed, meditation_duration, meditation_completed_at, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			meditation_completed = 1,
			meditation_duration = excluded.meditation_duration,
			meditation_completed_at = excluded.meditation_completed_at,
			updated_at = excluded.updated_at
	`, userID.String(), day, dur, now, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert checkin: %w", err)
	}
	return s.GetCheckin(userID, day)
}

// MarkGratitude marks the gratitude practice complete on the day's
// check-in, creating it if needed.
func (s *Store) MarkGratitude(userID uuid.UUID, day string) error {
	return s.markPractice(userID, day, "gratitude_completed", "gratitude_completed_at")
}

// MarkJournal marks the journal practice complete on the day's
// check-in, creating it if needed.
func (s *Store) MarkJournal(userID uuid.UUID, day string) error {
	return s.markPractice(userID, day, "journal_completed", "journal_completed_at")
}

func (s *Store) markPractice(userID uuid.UUID, day, flagCol, atCol string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	// Column names come from the two callers above, never from input.
	_, err := s.db.Exec(`
		INSERT INTO daily_checkins (user_id, date, `+flagCol+`, `+atCol+`, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			`+flagCol+` = 1,
			`+atCol+` = excluded.`+atCol+`,
			updated_at = excluded.updated_at
	`, userID.String(), day, now, now, now)
	if err != nil {
		return fmt.Errorf("upsert checkin: %w", err)
	}
	return nil
}

// GetOrCreateCheckin returns the day's check-in, creating an empty one
// if none exists. The create races safely against concurrent callers.
func (s *Store) GetOrCreateCheckin(userID uuid.UUID, day string) (*Checkin, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO daily_checkins (user_id, date, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO NOTHING
	`, userID.String(), day, now, now)
	if err != nil {
		return nil, fmt.Errorf("ensure checkin: %w", err)
	}
	return s.GetCheckin(userID, day)
}

// GetCheckin returns the day's check-in. Returns sql.ErrNoRows if none
// exists.
func (s *Store) GetCheckin(userID uuid.UUID, day string) (*Checkin, error) {
	return s.scanCheckin(s.db.QueryRow(
		`SELECT `+checkinColumns+` FROM daily_checkins WHERE user_id = ? AND date = ?`,
		userID.String(), day))
}

// SaveGratitude replaces the day's gratitude list wholesale and marks
// the practice complete on the check-in.
func (s *Store) SaveGratitude(userID uuid.UUID, day string, items []string) (*GratitudeEntry, error) {
	if items == nil {
		items = []string{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = s.db.Exec(`
		INSERT INTO gratitude_entries (user_id, date, items, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			items = excluded.items,
			updated_at = excluded.updated_at
	`, userID.String(), day, string(itemsJSON), now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert gratitude: %w", err)
	}

	if err := s.MarkGratitude(userID, day); err != nil {
		return nil, err
	}
	return s.GetGratitude(userID, day)
}

// GetGratitude returns the day's gratitude list. Returns sql.ErrNoRows
// if none exists.
func (s *Store) GetGratitude(userID uuid.UUID, day string) (*GratitudeEntry, error) {
	var e GratitudeEntry
	var idStr, itemsJSON, createdStr, updatedStr string

	err := s.db.QueryRow(
		`SELECT user_id, date, items, created_at, updated_at FROM gratitude_entries WHERE user_id = ? AND date = ?`,
		userID.String(), day).Scan(&idStr, &e.Date, &itemsJSON, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}

	if err := s.populateTimes(&e.CreatedAt, &e.UpdatedAt, createdStr, updatedStr); err != nil {
		return nil, err
	}
	e.UserID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if err := json.Unmarshal([]byte(itemsJSON), &e.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return &e, nil
}

// AppendEntry saves journal content for the day. When the day already
// has an entry the new content is appended after a blank line; the
// whole create-or-append is one statement, so concurrent saves never
// lose text. Marks the journal practice complete.
func (s *Store) AppendEntry(userID uuid.UUID, day, content string) (*Entry, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.Exec(`
		INSERT INTO journal_entries (user_id, date, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			content = journal_entries.content || char(10) || char(10) || excluded.content,
			updated_at = excluded.updated_at
	`, userID.String(), day, content, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert entry: %w", err)
	}

	if err := s.MarkJournal(userID, day); err != nil {
		return nil, err
	}
	return s.GetEntry(userID, day)
}

// SetReflection stores a reflection on an existing journal entry.
func (s *Store) SetReflection(userID uuid.UUID, day, reflection string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`UPDATE journal_entries SET reflection = ?, updated_at = ? WHERE user_id = ? AND date = ?`,
		nullStr(reflection), now, userID.String(), day)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("no journal entry for %s", day)
	}
	return nil
}

// GetEntry returns the day's journal entry. Returns sql.ErrNoRows if
// none exists.
func (s *Store) GetEntry(userID uuid.UUID, day string) (*Entry, error) {
	return s.scanEntry(s.db.QueryRow(
		`SELECT `+entryColumns+` FROM journal_entries WHERE user_id = ? AND date = ?`,
		userID.String(), day))
}

// ListEntriesSince returns journal entries on or after the cutoff day,
// oldest first.
func (s *Store) ListEntriesSince(userID uuid.UUID, cutoff string) ([]*Entry, error) {
	rows, err := s.db.Query(
		`SELECT `+entryColumns+` FROM journal_entries WHERE user_id = ? AND date >= ? ORDER BY date`,
		userID.String(), cutoff)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := s.scanEntryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- scan helpers ---

func (s *Store) scanCheckin(row *sql.Row) (*Checkin, error) {
	var c Checkin
	var idStr, createdStr, updatedStr string
	var dur sql.NullInt64
	var medAt, gratAt, jourAt sql.NullString

	err := row.Scan(&idStr, &c.Date, &c.MeditationCompleted, &dur, &medAt,
		&c.GratitudeCompleted, &gratAt, &c.JournalCompleted, &jourAt,
		&createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}

	c.UserID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if dur.Valid {
		c.MeditationDuration = int(dur.Int64)
	}
	c.MeditationCompletedAt = parseTimePtr(medAt)
	c.GratitudeCompletedAt = parseTimePtr(gratAt)
	c.JournalCompletedAt = parseTimePtr(jourAt)

	if err := s.populateTimes(&c.CreatedAt, &c.UpdatedAt, createdStr, updatedStr); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) scanEntry(row *sql.Row) (*Entry, error) {
	var e Entry
	var idStr, createdStr, updatedStr string
	var reflection sql.NullString

	err := row.Scan(&idStr, &e.Date, &e.Content, &reflection, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}
	return s.populateEntry(&e, idStr, reflection, createdStr, updatedStr)
}

func (s *Store) scanEntryRow(rows *sql.Rows) (*Entry, error) {
	var e Entry
	var idStr, createdStr, updatedStr string
	var reflection sql.NullString

	err := rows.Scan(&idStr, &e.Date, &e.Content, &reflection, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}
	return s.populateEntry(&e, idStr, reflection, createdStr, updatedStr)
}

func (s *Store) populateEntry(e *Entry, idStr string, reflection sql.NullString, createdStr, updatedStr string) (*Entry, error) {
	var err error
	e.UserID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	e.Reflection = reflection.String
	if err := s.populateTimes(&e.CreatedAt, &e.UpdatedAt, createdStr, updatedStr); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) populateTimes(created, updated *time.Time, createdStr, updatedStr string) error {
	var err error
	*created, err = time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return fmt.Errorf("parse created_at: %w", err)
	}
	*updated, err = time.Parse(time.RFC3339, updatedStr)
	if err != nil {
		return fmt.Errorf("parse updated_at: %w", err)
	}
	return nil
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
