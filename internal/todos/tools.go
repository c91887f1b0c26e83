package todos

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wuweiapp/wuwei/internal/tools"
)

// Tools provides todo-related tools for the agent.
type Tools struct {
	store *Store
	now   func() time.Time
}

// NewTools creates todo tools using the given store.
func NewTools(store *Store) *Tools {
	return &Tools{store: store, now: time.Now}
}

// RegisterTools adds the todo tools to a registry.
func (t *Tools) RegisterTools(reg *tools.Registry) error {
	defs := []*tools.Tool{
		{
			Name:        "create_todo",
			Description: "Create a new todo item for the user, optionally with a due date.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task": map[string]any{
						"type":        "string",
						"description": "What needs to be done",
					},
					"due_date": map[string]any{
						"type":        "string",
						"description": "When it's due: 'today', 'tomorrow', or a date like 2026-09-01",
					},
				},
				"required": []string{"task"},
			},
			Handler: t.handleCreate,
		},
		{
			Name:        "complete_todo",
			Description: "Mark one of the user's todos as done. Describe the task; an exact title is not required.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"search": map[string]any{
						"type":        "string",
						"description": "Words identifying the todo to complete",
					},
				},
				"required": []string{"search"},
			},
			Handler: t.handleComplete,
		},
		{
			Name:        "get_todos",
			Description: "Get the user's todo list.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"include_completed": map[string]any{
						"type":        "boolean",
						"description": "Also include finished todos (default false)",
					},
				},
			},
			Handler: t.handleList,
		},
	}

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// parseDueDate accepts "today", "tomorrow", or an ISO date. Anything
// else is an error; the model gets it back and can rephrase.
func (t *Tools) parseDueDate(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return "", nil
	case "today":
		return t.now().Format("2006-01-02"), nil
	case "tomorrow":
		return t.now().AddDate(0, 0, 1).Format("2006-01-02"), nil
	}
	parsed, err := time.Parse("2006-01-02", s)
	if err != nil {
		return "", fmt.Errorf("invalid due date %q: use 'today', 'tomorrow', or YYYY-MM-DD", raw)
	}
	return parsed.Format("2006-01-02"), nil
}

func (t *Tools) handleCreate(ctx context.Context, id tools.Identity, args map[string]any) (string, error) {
	task, _ := args["task"].(string)
	if task == "" {
		return "", fmt.Errorf("task is required")
	}

	rawDue, _ := args["due_date"].(string)
	due, err := t.parseDueDate(rawDue)
	if err != nil {
		return "", err
	}

	td, err := t.store.Create(id.UserID, task, due)
	if err != nil {
		return "", fmt.Errorf("create todo: %w", err)
	}

	result := map[string]any{
		"created": true,
		"task":    td.Task,
	}
	if td.DueDate != "" {
		result["due_date"] = td.DueDate
	}
	return marshalResult(result)
}

// handleComplete finds the todo to complete by search text. An exact
// (case-insensitive) title match wins; otherwise a todo matches when
// every search word appears in its title. One match completes it; more
// than one reports the candidates without mutating anything.
func (t *Tools) handleComplete(ctx context.Context, id tools.Identity, args map[string]any) (string, error) {
	search, _ := args["search"].(string)
	if search == "" {
		return "", fmt.Errorf("search is required")
	}

	open, err := t.store.ListIncomplete(id.UserID)
	if err != nil {
		return "", fmt.Errorf("list todos: %w", err)
	}

	if match := findTodo(open, search); match != nil {
		done, err := t.store.Complete(id.UserID, match.ID)
		if err != nil {
			return "", fmt.Errorf("complete todo: %w", err)
		}
		return marshalResult(map[string]any{"completed": true, "task": done.Task})
	}

	matches := wordMatches(open, search)
	if len(matches) > 1 {
		candidates := make([]map[string]any, 0, len(matches))
		for _, m := range matches {
			candidates = append(candidates, map[string]any{"id": m.ID, "task": m.Task})
		}
		return marshalResult(map[string]any{
			"completed": false,
			"message":   "Multiple matches found",
			"matches":   candidates,
		})
	}

	return marshalResult(map[string]any{
		"completed": false,
		"message":   "Todo not found",
	})
}

// findTodo returns the single todo the search text identifies, or nil
// when zero or several qualify.
func findTodo(open []*Todo, search string) *Todo {
	var exact []*Todo
	for _, td := range open {
		if strings.EqualFold(td.Task, search) {
			exact = append(exact, td)
		}
	}
	if len(exact) == 1 {
		return exact[0]
	}

	matches := wordMatches(open, search)
	if len(matches) == 1 {
		return matches[0]
	}
	return nil
}

// wordMatches returns todos whose title contains every search word.
func wordMatches(open []*Todo, search string) []*Todo {
	words := strings.Fields(strings.ToLower(search))
	var matches []*Todo
	for _, td := range open {
		task := strings.ToLower(td.Task)
		all := true
		for _, w := range words {
			if !strings.Contains(task, w) {
				all = false
				break
			}
		}
		if all {
			matches = append(matches, td)
		}
	}
	return matches
}

func (t *Tools) handleList(ctx context.Context, id tools.Identity, args map[string]any) (string, error) {
	includeCompleted, _ := args["include_completed"].(bool)

	list, err := t.store.List(id.UserID, includeCompleted)
	if err != nil {
		return "", fmt.Errorf("list todos: %w", err)
	}

	out := make([]map[string]any, 0, len(list))
	for _, td := range list {
		item := map[string]any{
			"id":        td.ID,
			"task":      td.Task,
			"completed": td.Completed,
		}
		if td.DueDate != "" {
			item["due_date"] = td.DueDate
		}
		out = append(out, item)
	}
	return marshalResult(map[string]any{"todos": out})
}

func marshalResult(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(out), nil
}
