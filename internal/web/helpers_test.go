package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wuweiapp/wuwei/internal/agent"
	"github.com/wuweiapp/wuwei/internal/chat"
	"github.com/wuweiapp/wuwei/internal/journal"
	"github.com/wuweiapp/wuwei/internal/llm"
	"github.com/wuweiapp/wuwei/internal/mantras"
	"github.com/wuweiapp/wuwei/internal/todos"
	"github.com/wuweiapp/wuwei/internal/tools"
	"github.com/wuweiapp/wuwei/internal/users"
)

// stubClient answers every chat request with a fixed function.
type stubClient struct {
	fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

func (c *stubClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return c.fn(ctx, req)
}

func (c *stubClient) Ping(ctx context.Context) error { return nil }

func echoModel(text string) *stubClient {
	return &stubClient{fn: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			Message:    llm.Message{Role: "assistant", Content: text},
			StopReason: "end_turn",
		}, nil
	}}
}

func testStores(t *testing.T) Stores {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	userStore, err := users.NewStore(db, nil)
	if err != nil {
		t.Fatalf("users store: %v", err)
	}
	chatStore, err := chat.NewStore(db, nil)
	if err != nil {
		t.Fatalf("chat store: %v", err)
	}
	todoStore, err := todos.NewStore(db, nil)
	if err != nil {
		t.Fatalf("todos store: %v", err)
	}
	mantraStore, err := mantras.NewStore(db, nil)
	if err != nil {
		t.Fatalf("mantras store: %v", err)
	}
	journalStore, err := journal.NewStore(db, nil)
	if err != nil {
		t.Fatalf("journal store: %v", err)
	}

	return Stores{
		Users:   userStore,
		Chat:    chatStore,
		Todos:   todoStore,
		Mantras: mantraStore,
		Journal: journalStore,
	}
}

// newTestServer builds a full server over in-memory storage and the
// given model stub, plus one registered account.
func newTestServer(t *testing.T, client llm.Client, timeout time.Duration) (*httptest.Server, Stores, string) {
	t.Helper()
	stores := testStores(t)

	reg := tools.NewRegistry(nil)
	if err := todos.NewTools(stores.Todos).RegisterTools(reg); err != nil {
		t.Fatalf("register todo tools: %v", err)
	}
	if err := journal.NewTools(stores.Journal).RegisterTools(reg); err != nil {
		t.Fatalf("register journal tools: %v", err)
	}
	if err := mantras.NewTools(stores.Mantras).RegisterTools(reg); err != nil {
		t.Fatalf("register mantra tools: %v", err)
	}

	loop := agent.NewLoop(client, reg, "test-model", 512, nil)
	s := NewServer("127.0.0.1", 0, loop, stores, timeout, nil)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	token := registerUser(t, srv, "test@example.com")
	return srv, stores, token
}

func registerUser(t *testing.T, srv *httptest.Server, email string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": "hunter2"})
	resp, err := http.Post(srv.URL+"/v1/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if out.Token == "" {
		t.Fatal("no token issued")
	}
	return out.Token
}

// doJSON performs an authenticated request and decodes the response.
func doJSON(t *testing.T, srv *httptest.Server, token, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func wsURL(srv *httptest.Server, token string) string {
	return fmt.Sprintf("ws%s/ws/chat?token=%s", srv.URL[len("http"):], token)
}
