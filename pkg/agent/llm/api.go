// Package llm provides interfaces and types for Large Language Model client implementations.
package llm

import (
	"context"
	"fmt"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens bounds a single reply. Reasoning models spend a large share
	// of it inside think blocks, so it is generous.
	DefaultMaxTokens = 8192

	// TemperatureManager keeps routing replies deterministic.
	TemperatureManager = 0.0
	// TemperaturePlanner allows a little variety in plans.
	TemperaturePlanner = 0.1
	// TemperatureProgrammer keeps generated code deterministic.
	TemperatureProgrammer = 0.0
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string // Main response text, reasoning markers included
	StopReason string // Provider stop reason: "stop", "end_turn", "length", ...
}

// StreamChunk represents a chunk of streamed completion response.
type StreamChunk struct {
	Error   error
	Content string
	Done    bool
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // name kept for readability at call sites
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// Stream generates a completion as a stream of chunks. The channel is closed
	// after a Done or Error chunk.
	Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error)

	// GetModelName returns the model (or deployment) name for this client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:  messages,
		MaxTokens: DefaultMaxTokens,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleAssistant,
		Content: content,
	}
}

// Validate checks the request before it reaches a provider.
func (r *CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("completion request has no messages")
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if r.Temperature < 0.0 || r.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}

// PromptText joins all message contents, used for token accounting.
func (r *CompletionRequest) PromptText() string {
	var total int
	for i := range r.Messages {
		total += len(r.Messages[i].Content) + 1
	}
	buf := make([]byte, 0, total)
	for i := range r.Messages {
		buf = append(buf, r.Messages[i].Content...)
		buf = append(buf, '\n')
	}
	return string(buf)
}
