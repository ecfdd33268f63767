// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"
	"fmt"
	"strings"
)

// LLMService is the black-box completion service used to phrase answers.
// This is an optional service - when nil, answers list the retrieved context only.
//
// Implementations may include:
//   - Ollama (local models)
//   - OpenAI (GPT-4o)
//   - Anthropic (Claude)
type LLMService interface {
	// Complete answers the user message under the given system prompt.
	// docs are context passages the model should ground its answer on.
	Complete(ctx context.Context, system, user string, docs []string) (string, error)

	// Chat conducts a multi-turn conversation.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)

	// ModelName returns the name of the LLM model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// ChatOptions configures chat behaviour.
type ChatOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}

// CompletionMessages builds the chat messages for a Complete call.
// Context passages are appended to the system prompt as numbered blocks
// so every provider sees the same layout.
func CompletionMessages(system, user string, docs []string) []ChatMessage {
	var sys strings.Builder
	sys.WriteString(system)
	for i, d := range docs {
		fmt.Fprintf(&sys, "\n\n[%d] %s", i+1, d)
	}

	msgs := make([]ChatMessage, 0, 2)
	if sys.Len() > 0 {
		msgs = append(msgs, ChatMessage{Role: "system", Content: sys.String()})
	}
	return append(msgs, ChatMessage{Role: "user", Content: user})
}
