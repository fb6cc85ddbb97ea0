package driven

import (
	"context"
)

// Message is one chat-formatted prompt message
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// CompletionRequest describes one language model call
type CompletionRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int // 0 = provider default
}

// TokenStream is an ordered, finite, non-restartable sequence of answer deltas.
// Recv returns io.EOF once the model has finished.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// LLMService provides large language model completions
type LLMService interface {
	// Complete returns the full response text
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Stream returns the response incrementally.
	// The stream stays bound to ctx; cancelling it ends the stream.
	Stream(ctx context.Context, req CompletionRequest) (TokenStream, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the LLM service is available
	Ping(ctx context.Context) error

	// Close releases resources held by the LLM service
	Close() error
}
