package mantras

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wuweiapp/wuwei/internal/tools"
)

// Tools provides mantra-related tools for the agent.
type Tools struct {
	store *Store
}

// NewTools creates mantra tools using the given store.
func NewTools(store *Store) *Tools {
	return &Tools{store: store}
}

// RegisterTools adds the mantra tools to a registry.
func (t *Tools) RegisterTools(reg *tools.Registry) error {
	defs := []*tools.Tool{
		{
			Name:        "get_mantras",
			Description: "Get the user's personal mantras.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: t.handleList,
		},
		{
			Name:        "add_mantra",
			Description: "Add a new personal mantra for the user.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "The mantra text",
					},
				},
				"required": []string{"content"},
			},
			Handler: t.handleAdd,
		},
	}

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tools) handleList(ctx context.Context, id tools.Identity, args map[string]any) (string, error) {
	list, err := t.store.List(id.UserID)
	if err != nil {
		return "", fmt.Errorf("list mantras: %w", err)
	}

	out := make([]map[string]any, 0, len(list))
	for _, m := range list {
		out = append(out, map[string]any{"id": m.ID, "content": m.Content})
	}
	return marshalResult(map[string]any{"mantras": out})
}

func (t *Tools) handleAdd(ctx context.Context, id tools.Identity, args map[string]any) (string, error) {
	content, _ := args["content"].(string)
	if content == "" {
		return "", fmt.Errorf("content is required")
	}

	m, err := t.store.Add(id.UserID, content)
	if err != nil {
		return "", fmt.Errorf("add mantra: %w", err)
	}
	return marshalResult(map[string]any{"added": true, "id": m.ID, "content": m.Content})
}

func marshalResult(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(out), nil
}
