// Package users provides account storage and credential verification.
package users

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const userColumns = "id, email, password_hash, timezone, anthropic_api_key, created_at"

// ErrInvalidCredentials is returned when an email/password pair does
// not match a stored account.
var ErrInvalidCredentials = errors.New("invalid credentials")

// dummyHash is compared against when the email is unknown, so both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("wuwei-timing-pad"), bcrypt.DefaultCost)

// User is one account. AnthropicAPIKey, when set, overrides the
// server-wide key for this user's model calls.
type User struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Timezone        string    `json:"timezone,omitempty"`
	AnthropicAPIKey string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store manages account persistence in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a user store on the given database handle.
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
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			timezone TEXT,
			anthropic_api_key TEXT,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS auth_tokens (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_auth_tokens_user ON auth_tokens(user_id);
	`)
	return err
}

// Create registers a new account. The password is stored as a bcrypt
// hash; the plaintext never touches the database.
func (s *Store) Create(email, password, timezone string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	now := time.Now().UTC()

	_, err = s.db.Exec(`
		INSERT INTO users (id, email, password_hash, timezone, anthropic_api_key, created_at)
		VALUES (?, ?, ?, ?, NULL, ?)
	`, id.String(), email, string(hash), nullStr(timezone), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	return &User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		Timezone:     timezone,
		CreatedAt:    now,
	}, nil
}

// Authenticate verifies an email/password pair. Returns
// ErrInvalidCredentials on either an unknown email or a wrong
// password, so callers cannot distinguish the two.
func (s *Store) Authenticate(email, password string) (*User, error) {
	u, err := s.GetByEmail(email)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// GetByEmail retrieves an account by email (case-insensitive).
func (s *Store) GetByEmail(email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// Get retrieves an account by ID.
func (s *Store) Get(id uuid.UUID) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id.String()))
}

// GetOrCreateByEmail returns the account with the given email,
// creating one with a random unusable password if none exists. Used by
// the CLI, which has no login step.
func (s *Store) GetOrCreateByEmail(email string) (*User, error) {
	u, err := s.GetByEmail(email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return s.Create(email, randomToken(), "")
}

// SetAnthropicAPIKey stores (or clears, with "") a personal API key.
func (s *Store) SetAnthropicAPIKey(id uuid.UUID, key string) error {
	res, err := s.db.Exec(
		`UPDATE users SET anthropic_api_key = ? WHERE id = ?`,
		nullStr(key), id.String())
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// SetTimezone updates an account's IANA timezone name.
func (s *Store) SetTimezone(id uuid.UUID, tz string) error {
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid timezone %q", tz)
		}
	}
	res, err := s.db.Exec(
		`UPDATE users SET timezone = ? WHERE id = ?`,
		nullStr(tz), id.String())
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// CreateToken issues a new bearer token for an account. Tokens do not
// expire; they are revoked by deletion.
func (s *Store) CreateToken(userID uuid.UUID) (string, error) {
	token := randomToken()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		`INSERT INTO auth_tokens (token, user_id, created_at) VALUES (?, ?, ?)`,
		token, userID.String(), now)
	if err != nil {
		return "", fmt.Errorf("insert token: %w", err)
	}
	return token, nil
}

// GetByToken resolves a bearer token to its account. Returns
// sql.ErrNoRows for unknown tokens.
func (s *Store) GetByToken(token string) (*User, error) {
	return s.scanUser(s.db.QueryRow(`
		SELECT users.id, users.email, users.password_hash, users.timezone,
		       users.anthropic_api_key, users.created_at
		FROM users
		JOIN auth_tokens ON auth_tokens.user_id = users.id
		WHERE auth_tokens.token = ?
	`, token))
}

// DeleteToken revokes a bearer token.
func (s *Store) DeleteToken(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_tokens WHERE token = ?`, token)
	return err
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	var idStr, createdStr string
	var timezone, apiKey sql.NullString

	err := row.Scan(&idStr, &u.Email, &u.PasswordHash, &timezone, &apiKey, &createdStr)
	if err != nil {
		return nil, err
	}

	u.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	u.Timezone = timezone.String
	u.AnthropicAPIKey = apiKey.String
	u.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &u, nil
}

func randomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
