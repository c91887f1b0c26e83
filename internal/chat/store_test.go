package chat

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestAppendAndListRecent(t *testing.T) {
	s := testStore(t)
	userID := uuid.New()

	if _, err := s.Append(userID, "user", "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.Append(userID, "assistant", "hi"); err != nil {
		t.Fatalf("append: %v", err)
	}

	msgs, err := s.ListRecent(userID, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("order wrong: %q then %q", msgs[0].Role, msgs[1].Role)
	}
}

func TestListRecentLimitKeepsNewest(t *testing.T) {
	s := testStore(t)
	userID := uuid.New()

	for i := 0; i < 30; i++ {
		if _, err := s.Append(userID, "user", fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	msgs, err := s.ListRecent(userID, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("got %d messages, want 20", len(msgs))
	}
	if msgs[0].Content != "msg 10" || msgs[19].Content != "msg 29" {
		t.Errorf("window wrong: first=%q last=%q", msgs[0].Content, msgs[19].Content)
	}
}

func TestAppendRejectsBadRole(t *testing.T) {
	s := testStore(t)
	if _, err := s.Append(uuid.New(), "system", "nope"); err == nil {
		t.Error("system role should be rejected")
	}
}

func TestTranscriptsAreScopedPerUser(t *testing.T) {
	s := testStore(t)
	a, b := uuid.New(), uuid.New()

	_, _ = s.Append(a, "user", "mine")
	_, _ = s.Append(b, "user", "theirs")

	msgs, err := s.ListRecent(a, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "mine" {
		t.Errorf("got %v, want only user a's message", msgs)
	}
}

func TestClear(t *testing.T) {
	s := testStore(t)
	userID := uuid.New()

	_, _ = s.Append(userID, "user", "hello")
	if err := s.Clear(userID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	msgs, _ := s.ListRecent(userID, 20)
	if len(msgs) != 0 {
		t.Errorf("got %d messages after clear", len(msgs))
	}
}
