package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wuweiapp/wuwei/internal/tools"
)

// Tools provides journal-related tools for the agent.
type Tools struct {
	store *Store
	now   func() time.Time
}

// NewTools creates journal tools using the given store.
func NewTools(store *Store) *Tools {
	return &Tools{store: store, now: time.Now}
}

// RegisterTools adds the journal tools to a registry.
func (t *Tools) RegisterTools(reg *tools.Registry) error {
	defs := []*tools.Tool{
		{
			Name:        "log_meditation",
			Description: "Log that the user completed their meditation today. Optionally record how long they meditated.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"duration_minutes": map[string]any{
						"type":        "integer",
						"description": "How long the meditation lasted, in minutes",
					},
				},
			},
			Handler: t.handleLogMeditation,
		},
		{
			Name:        "save_gratitude_list",
			Description: "Save the user's gratitude list for today. Replaces any list saved earlier today.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"items": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "The things the user is grateful for today",
					},
				},
				"required": []string{"items"},
			},
			Handler: t.handleSaveGratitude,
		},
		{
			Name:        "save_journal_entry",
			Description: "Save a journal entry for today. If the user already journaled today, the new text is appended.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "The journal text to save",
					},
				},
				"required": []string{"content"},
			},
			Handler: t.handleSaveEntry,
		},
		{
			Name:        "get_recent_entries",
			Description: "Get the user's recent journal entries.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"days": map[string]any{
						"type":        "integer",
						"description": "How many days back to look (default 7)",
					},
				},
			},
			Handler: t.handleRecentEntries,
		},
		{
			Name:        "get_todays_status",
			Description: "Get today's check-in status: which practices the user has completed so far.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: t.handleTodaysStatus,
		},
	}

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tools) today() string {
	return t.now().Format(DayFormat)
}

func (t *Tools) handleLogMeditation(ctx context.Context, id tools.Identity, args map[string]any) (string, error) {
	duration := 0
	if d, ok := args["duration_minutes"].(float64); ok {
		duration = int(d)
	}

	day := t.today()
	c, err := t.store.LogMeditation(id.UserID, day, duration)
	if err != nil {
		return "", fmt.Errorf("log meditation: %w", err)
	}

	result := map[string]any{
		"logged": true,
		"date":   day,
	}
	if c.MeditationDuration > 0 {
		result["duration"] = c.MeditationDuration
	}
	return marshalResult(result)
}

func (t *Tools) handleSaveGratitude(ctx context.Context, id tools.Identity, args map[string]any) (string, error) {
	rawItems, ok := args["items"].([]any)
	if !ok {
		return "", fmt.Errorf("items is required")
	}
	items := make([]string, 0, len(rawItems))
	for _, it := range rawItems {
		s, ok := it.(string)
		if !ok {
			return "", fmt.Errorf("items must be strings")
		}
		items = append(items, s)
	}

	e, err := t.store.SaveGratitude(id.UserID, t.today(), items)
	if err != nil {
		return "", fmt.Errorf("save gratitude: %w", err)
	}

	return marshalResult(map[string]any{
		"saved": true,
		"count": len(e.Items),
		"items": e.Items,
	})
}

func (t *Tools) handleSaveEntry(ctx context.Context, id tools.Identity, args map[string]any) (string, error) {
	content, _ := args["content"].(string)
	if content == "" {
		return "", fmt.Errorf("content is required")
	}

	day := t.today()
	e, err := t.store.AppendEntry(id.UserID, day, content)
	if err != nil {
		return "", fmt.Errorf("save entry: %w", err)
	}

	return marshalResult(map[string]any{
		"saved":          true,
		"date":           day,
		"content_length": len(e.Content),
	})
}

func (t *Tools) handleRecentEntries(ctx context.Context, id tools.Identity, args map[string]any) (string, error) {
	days := 7
	if d, ok := args["days"].(float64); ok && d > 0 {
		days = int(d)
	}

	cutoff := t.now().AddDate(0, 0, -days).Format(DayFormat)
	entries, err := t.store.ListEntriesSince(id.UserID, cutoff)
	if err != nil {
		return "", fmt.Errorf("list entries: %w", err)
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"date":       e.Date,
			"content":    e.Content,
			"reflection": e.Reflection,
		})
	}
	return marshalResult(map[string]any{"entries": out})
}

func (t *Tools) handleTodaysStatus(ctx context.Context, id tools.Identity, args map[string]any) (string, error) {
	day := t.today()
	c, err := t.store.GetOrCreateCheckin(id.UserID, day)
	if err != nil {
		return "", fmt.Errorf("get checkin: %w", err)
	}

	result := map[string]any{
		"date":       day,
		"meditation": c.MeditationCompleted,
		"gratitude":  c.GratitudeCompleted,
		"journal":    c.JournalCompleted,
	}
	if c.MeditationDuration > 0 {
		result["meditation_duration"] = c.MeditationDuration
	}
	return marshalResult(result)
}

func marshalResult(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(out), nil
}
