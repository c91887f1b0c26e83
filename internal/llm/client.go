package llm

import "context"

// Client is the interface the agent loop uses to reach the language
// service. Implementations are synchronous: one request, one response.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Ping checks if the provider is reachable with valid credentials.
	Ping(ctx context.Context) error
}
