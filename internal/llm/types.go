// Package llm provides the language model boundary for the agent.
package llm

import (
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents one turn unit in a conversation history.
// Role is one of "user", "assistant", or "tool". Assistant messages
// may carry tool calls; tool messages carry the result for exactly
// one prior call, identified by ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool results
	ToolName   string     `json:"tool_name,omitempty"`    // set on tool results
}

// ToolCall represents one structured operation request from the model.
// ID is provider-assigned and opaque; it ties a later tool result back
// to the request that produced it.
type ToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// NewToolCall builds a ToolCall. Mostly useful in tests — production
// calls come off the wire.
func NewToolCall(id, name string, args map[string]any) ToolCall {
	var tc ToolCall
	tc.ID = id
	tc.Function.Name = name
	tc.Function.Arguments = args
	return tc
}

// ChatRequest is one synchronous request to the language service:
// a fixed system instruction, the full ordered history, and the
// advertised tool schema.
type ChatRequest struct {
	Model    string
	System   string
	Messages []Message
	Tools    []map[string]any

	// APIKey, when non-empty, overrides the client's configured key for
	// this request. Carried from the user's stored personal key.
	APIKey string

	// MaxTokens caps the model output. Zero means the client default.
	MaxTokens int
}

// ChatResponse is the provider-neutral response. Exactly one
// interpretation applies per response: when Message.ToolCalls is empty
// the text is final; otherwise the calls must be executed and fed back.
type ChatResponse struct {
	Model      string
	Message    Message
	StopReason string

	InputTokens  int
	OutputTokens int
}
