// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wuweiapp/wuwei/internal/llm"
)

// Identity is the caller every tool executes on behalf of. It is
// threaded into each handler at dispatch time and never appears in a
// tool's parameter schema, so the model cannot supply or alter it.
type Identity struct {
	UserID uuid.UUID

	// AnthropicAPIKey, when set, is the user's personal key for model
	// calls. Tool handlers have no use for it; the loop does.
	AnthropicAPIKey string
}

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     func(ctx context.Context, id Identity, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools. Register everything at startup;
// after that the registry is read-only and safe for concurrent use.
type Registry struct {
	tools   map[string]*Tool
	schemas map[string]*jsonschema.Schema
	order   []string
	logger  *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]*Tool),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  logger,
	}
}

// Register adds a tool, compiling its parameter schema. Duplicate
// names and invalid schemas are startup errors.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("duplicate tool: %s", t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}

	params := t.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("tool %s: marshal schema: %w", t.Name, err)
	}
	schema, err := jsonschema.CompileString(t.Name+".json", string(raw))
	if err != nil {
		return fmt.Errorf("tool %s: compile schema: %w", t.Name, err)
	}

	r.tools[t.Name] = t
	r.schemas[t.Name] = schema
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister is Register for startup paths where a bad tool
// definition is a programming error.
func (r *Registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns all tool definitions in the shape the model client
// expects, in registration order.
func (r *Registry) Schema() []map[string]any {
	var result []map[string]any
	for _, name := range r.order {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Dispatch executes a batch of tool calls on behalf of one identity
// and returns one tool-result message per call, in call order. A
// failing call — unknown name, schema-invalid arguments, handler error
// or panic — produces an error-shaped result for that call only; the
// rest of the batch still runs.
func (r *Registry) Dispatch(ctx context.Context, id Identity, calls []llm.ToolCall) []llm.Message {
	results := make([]llm.Message, 0, len(calls))
	for _, call := range calls {
		content := r.execute(ctx, id, call)
		results = append(results, llm.Message{
			Role:       "tool",
			Content:    content,
			ToolCallID: call.ID,
			ToolName:   call.Function.Name,
		})
	}
	return results
}

func (r *Registry) execute(ctx context.Context, id Identity, call llm.ToolCall) (content string) {
	name := call.Function.Name

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec)
			content = errorResult(fmt.Sprintf("tool %s failed: internal error", name))
		}
	}()

	tool := r.tools[name]
	if tool == nil {
		r.logger.Warn("unknown tool requested", "tool", name)
		return errorResult(fmt.Sprintf("unknown tool: %s", name))
	}

	args := call.Function.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err := r.validateArgs(name, args); err != nil {
		r.logger.Warn("invalid tool arguments", "tool", name, "error", err)
		return errorResult(fmt.Sprintf("invalid arguments for %s: %v", name, err))
	}

	out, err := tool.Handler(ctx, id, args)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return errorResult(err.Error())
	}
	return out
}

// validateArgs checks arguments against the tool's compiled schema.
// The map round-trips through JSON so the validator sees plain
// interface values.
func (r *Registry) validateArgs(name string, args map[string]any) error {
	schema := r.schemas[name]
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	return schema.Validate(decoded)
}

// errorResult wraps an error message in the JSON shape handlers use
// for failures, so the model sees a consistent result structure.
func errorResult(msg string) string {
	out, _ := json.Marshal(map[string]any{"error": msg})
	return string(out)
}
