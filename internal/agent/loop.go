// Package agent implements the model/tool conversation loop.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wuweiapp/wuwei/internal/llm"
	"github.com/wuweiapp/wuwei/internal/prompts"
	"github.com/wuweiapp/wuwei/internal/tools"
)

// Loop drives one conversation turn: call the model, execute any tools
// it requests, feed the results back, repeat until the model answers
// in plain text. A Loop is stateless and shared across sessions; all
// per-call state lives in the arguments.
type Loop struct {
	client    llm.Client
	registry  *tools.Registry
	logger    *slog.Logger
	model     string
	maxTokens int
}

// NewLoop creates a loop over the given model client and tool registry.
func NewLoop(client llm.Client, registry *tools.Registry, model string, maxTokens int, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		client:    client,
		registry:  registry,
		logger:    logger,
		model:     model,
		maxTokens: maxTokens,
	}
}

// Run processes one user message against prior history and returns the
// assistant's final text. There is no round cap: the loop continues as
// long as the model keeps requesting tools, and the caller's ctx
// deadline is the backstop. A model-call failure aborts the whole run.
func (l *Loop) Run(ctx context.Context, id tools.Identity, history []llm.Message, text string) (string, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: text})

	schema := l.registry.Schema()

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := l.client.Chat(ctx, &llm.ChatRequest{
			Model:     l.model,
			System:    prompts.System,
			Messages:  messages,
			Tools:     schema,
			APIKey:    id.AnthropicAPIKey,
			MaxTokens: l.maxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("model call: %w", err)
		}

		messages = append(messages, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			l.logger.Debug("turn complete",
				"rounds", round,
				"stop_reason", resp.StopReason,
			)
			return resp.Message.Content, nil
		}

		l.logger.Debug("executing tools",
			"round", round,
			"count", len(resp.Message.ToolCalls),
		)
		results := l.registry.Dispatch(ctx, id, resp.Message.ToolCalls)
		messages = append(messages, results...)
	}
}
