package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConvertToAnthropicToolFlow(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "log my meditation"},
		{
			Role:    "assistant",
			Content: "Logging it now.",
			ToolCalls: []ToolCall{
				NewToolCall("toolu_1", "log_meditation", map[string]any{"duration_minutes": float64(10)}),
			},
		},
		{Role: "tool", ToolCallID: "toolu_1", ToolName: "log_meditation", Content: `{"logged":true}`},
	}

	msgs := convertToAnthropic(history)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}

	// Assistant turn with tool calls becomes content blocks.
	blocks, ok := msgs[1].Content.([]anthropicContent)
	if !ok {
		t.Fatalf("assistant content is %T, want []anthropicContent", msgs[1].Content)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want text + tool_use", len(blocks))
	}
	if blocks[0].Type != "text" || blocks[0].Text != "Logging it now." {
		t.Errorf("text block = %+v", blocks[0])
	}
	if blocks[1].Type != "tool_use" || blocks[1].ID != "toolu_1" || blocks[1].Name != "log_meditation" {
		t.Errorf("tool_use block = %+v", blocks[1])
	}

	// Tool result rides on a user-role message.
	if msgs[2].Role != "user" {
		t.Errorf("tool result role = %q, want user", msgs[2].Role)
	}
	resBlocks, ok := msgs[2].Content.([]anthropicContent)
	if !ok || len(resBlocks) != 1 {
		t.Fatalf("tool result content = %#v", msgs[2].Content)
	}
	if resBlocks[0].Type != "tool_result" || resBlocks[0].ToolUseID != "toolu_1" {
		t.Errorf("tool_result block = %+v", resBlocks[0])
	}
}

func TestConvertToAnthropicPlainText(t *testing.T) {
	msgs := convertToAnthropic([]Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	})
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if s, ok := msgs[1].Content.(string); !ok || s != "hi there" {
		t.Errorf("assistant content = %#v, want plain string", msgs[1].Content)
	}
}

func TestConvertFromAnthropic(t *testing.T) {
	resp := &anthropicResponse{
		Model:      "claude-sonnet-4-20250514",
		Role:       "assistant",
		StopReason: "tool_use",
		Content: []anthropicContent{
			{Type: "text", Text: "On it."},
			{Type: "tool_use", ID: "toolu_9", Name: "create_todo", Input: map[string]any{"task": "buy tea"}},
		},
		Usage: anthropicUsage{InputTokens: 12, OutputTokens: 34},
	}

	got := convertFromAnthropic(resp)
	if got.Message.Content != "On it." {
		t.Errorf("content = %q", got.Message.Content)
	}
	if len(got.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(got.Message.ToolCalls))
	}
	tc := got.Message.ToolCalls[0]
	if tc.ID != "toolu_9" || tc.Function.Name != "create_todo" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Function.Arguments["task"] != "buy tea" {
		t.Errorf("arguments = %v", tc.Function.Arguments)
	}
	if got.InputTokens != 12 || got.OutputTokens != 34 {
		t.Errorf("usage = %d/%d", got.InputTokens, got.OutputTokens)
	}
}

func TestConvertToolsToAnthropic(t *testing.T) {
	tools := []map[string]any{
		{
			"type": "function",
			"function": map[string]any{
				"name":        "get_todos",
				"description": "List todos",
				"parameters": map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		},
	}

	got := convertToolsToAnthropic(tools)
	if len(got) != 1 {
		t.Fatalf("got %d tools, want 1", len(got))
	}
	if got[0].Name != "get_todos" || got[0].Description != "List todos" {
		t.Errorf("tool = %+v", got[0])
	}
	if got[0].InputSchema == nil {
		t.Error("input schema missing")
	}

	if got := convertToolsToAnthropic(nil); got != nil {
		t.Errorf("nil tools should convert to nil, got %v", got)
	}
}

// TestChatAPIKeyOverride verifies the per-user key override reaches the
// wire and the fallback applies when no override is set. The client URL
// is fixed, so we exercise keyFor plus the request construction path
// against a local server via a transport rewrite.
func TestChatAPIKeyOverride(t *testing.T) {
	c := NewAnthropicClient("sk-fallback", nil)

	if got := c.keyFor(&ChatRequest{}); got != "sk-fallback" {
		t.Errorf("keyFor fallback = %q", got)
	}
	if got := c.keyFor(&ChatRequest{APIKey: "sk-user"}); got != "sk-user" {
		t.Errorf("keyFor override = %q", got)
	}
}

// rewriteTransport redirects all requests to a test server.
type rewriteTransport struct {
	target string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = t.target
	return http.DefaultTransport.RoundTrip(req)
}

func TestChatWireFormat(t *testing.T) {
	var captured anthropicRequest
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Model:      captured.Model,
			Role:       "assistant",
			StopReason: "end_turn",
			Content:    []anthropicContent{{Type: "text", Text: "done"}},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-fallback", nil)
	c.httpClient = &http.Client{Transport: &rewriteTransport{target: srv.Listener.Addr().String()}}

	resp, err := c.Chat(context.Background(), &ChatRequest{
		Model:  "claude-sonnet-4-20250514",
		System: "be brief",
		Messages: []Message{
			{Role: "user", Content: "hello"},
		},
		APIKey:    "sk-user",
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "done" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if gotKey != "sk-user" {
		t.Errorf("x-api-key = %q, want user override", gotKey)
	}
	if captured.System != "be brief" {
		t.Errorf("system = %q", captured.System)
	}
	if captured.MaxTokens != 256 {
		t.Errorf("max_tokens = %d", captured.MaxTokens)
	}
}
