package web

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wuweiapp/wuwei/internal/llm"
)

func dialChat(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame outboundFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestChatSocketRoundTrip(t *testing.T) {
	srv, stores, token := newTestServer(t, echoModel("the answer"), 5*time.Second)
	conn := dialChat(t, wsURL(srv, token))

	if err := conn.WriteJSON(inboundFrame{Type: "message", Content: "a question"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != "complete" || frame.Content != "the answer" {
		t.Errorf("frame = %+v", frame)
	}

	// Both sides of the exchange were persisted.
	u, _ := stores.Users.GetByEmail("test@example.com")
	msgs, err := stores.Chat.ListRecent(u.ID, 10)
	if err != nil {
		t.Fatalf("list transcript: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("transcript = %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "a question" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "the answer" {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
}

func TestChatSocketDropsInvalidFrames(t *testing.T) {
	srv, stores, token := newTestServer(t, echoModel("reply"), 5*time.Second)
	conn := dialChat(t, wsURL(srv, token))

	// Wrong type, empty content, whitespace-only content: all silently
	// dropped.
	_ = conn.WriteJSON(inboundFrame{Type: "ping", Content: "ignored"})
	_ = conn.WriteJSON(inboundFrame{Type: "message", Content: ""})
	_ = conn.WriteJSON(inboundFrame{Type: "message", Content: "   \n\t "})
	_ = conn.WriteJSON(inboundFrame{Type: "message", Content: "real one"})

	// The only complete frame is for the real message.
	frame := readFrame(t, conn)
	if frame.Type != "complete" || frame.Content != "reply" {
		t.Errorf("frame = %+v", frame)
	}

	u, _ := stores.Users.GetByEmail("test@example.com")
	msgs, _ := stores.Chat.ListRecent(u.ID, 10)
	if len(msgs) != 2 {
		t.Errorf("transcript = %d messages, want only the real exchange", len(msgs))
	}
}

func TestChatSocketTrimsContent(t *testing.T) {
	srv, stores, token := newTestServer(t, echoModel("reply"), 5*time.Second)
	conn := dialChat(t, wsURL(srv, token))

	_ = conn.WriteJSON(inboundFrame{Type: "message", Content: "  hello there \n"})

	frame := readFrame(t, conn)
	if frame.Type != "complete" {
		t.Fatalf("frame = %+v", frame)
	}

	// The persisted user message is the stripped text.
	u, _ := stores.Users.GetByEmail("test@example.com")
	msgs, _ := stores.Chat.ListRecent(u.ID, 10)
	if len(msgs) != 2 {
		t.Fatalf("transcript = %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "hello there" {
		t.Errorf("persisted content = %q, want trimmed text", msgs[0].Content)
	}
}

func TestChatSocketModelFailure(t *testing.T) {
	broken := &stubClient{fn: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, fmt.Errorf("upstream 500")
	}}
	srv, stores, token := newTestServer(t, broken, 5*time.Second)
	conn := dialChat(t, wsURL(srv, token))

	_ = conn.WriteJSON(inboundFrame{Type: "message", Content: "hello"})

	frame := readFrame(t, conn)
	if frame.Type != "complete" {
		t.Fatalf("frame type = %q", frame.Type)
	}
	if !strings.HasPrefix(frame.Content, "Sorry, something went wrong:") {
		t.Errorf("content = %q", frame.Content)
	}

	// The failure notice is persisted like any reply.
	u, _ := stores.Users.GetByEmail("test@example.com")
	msgs, _ := stores.Chat.ListRecent(u.ID, 10)
	if len(msgs) != 2 || !strings.HasPrefix(msgs[1].Content, "Sorry, something went wrong:") {
		t.Errorf("transcript = %+v", msgs)
	}
}

func TestChatSocketTimeout(t *testing.T) {
	slow := &stubClient{fn: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
			return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: "too late"}}, nil
		}
	}}
	srv, stores, token := newTestServer(t, slow, 50*time.Millisecond)
	conn := dialChat(t, wsURL(srv, token))

	_ = conn.WriteJSON(inboundFrame{Type: "message", Content: "hello"})

	frame := readFrame(t, conn)
	if frame.Type != "complete" || frame.Content != timeoutNotice {
		t.Errorf("frame = %+v", frame)
	}

	// Exactly one persisted notice; the late result never lands.
	u, _ := stores.Users.GetByEmail("test@example.com")
	msgs, _ := stores.Chat.ListRecent(u.ID, 10)
	if len(msgs) != 2 || msgs[1].Content != timeoutNotice {
		t.Errorf("transcript = %+v", msgs)
	}
}

func TestChatSocketToolFlow(t *testing.T) {
	// First turn requests create_todo, second answers in text.
	calls := 0
	model := &stubClient{fn: func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		calls++
		if calls == 1 {
			return &llm.ChatResponse{
				Message: llm.Message{
					Role:      "assistant",
					ToolCalls: []llm.ToolCall{llm.NewToolCall("c1", "create_todo", map[string]any{"task": "buy tea"})},
				},
				StopReason: "tool_use",
			}, nil
		}
		// Tool result must have come back.
		last := req.Messages[len(req.Messages)-1]
		if last.Role != "tool" || last.ToolCallID != "c1" {
			return nil, fmt.Errorf("tool result missing: %+v", last)
		}
		return &llm.ChatResponse{
			Message:    llm.Message{Role: "assistant", Content: "added to your list"},
			StopReason: "end_turn",
		}, nil
	}}

	srv, stores, token := newTestServer(t, model, 5*time.Second)
	conn := dialChat(t, wsURL(srv, token))

	_ = conn.WriteJSON(inboundFrame{Type: "message", Content: "remind me to buy tea"})

	frame := readFrame(t, conn)
	if frame.Content != "added to your list" {
		t.Errorf("frame = %+v", frame)
	}

	// The tool really ran against this user's data.
	u, _ := stores.Users.GetByEmail("test@example.com")
	list, _ := stores.Todos.List(u.ID, false)
	if len(list) != 1 || list[0].Task != "buy tea" {
		t.Errorf("todos = %+v", list)
	}
}

func TestChatSocketRequiresAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, echoModel("x"), time.Second)

	url := fmt.Sprintf("ws%s/ws/chat", srv.URL[len("http"):])
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("unauthenticated dial should fail")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Errorf("status = %v, want 401", resp)
	}
}
