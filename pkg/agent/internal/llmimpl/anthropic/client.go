// Package anthropic provides Anthropic Claude client implementation for LLM interface.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"openswe/pkg/agent/llm"
	"openswe/pkg/agent/llmerrors"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient interface.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates a Claude client. Empty model selects DefaultModel; a
// non-empty baseURL overrides the API host.
func NewClaudeClient(apiKey, model, baseURL string) llm.LLMClient {
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &ClaudeClient{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

// ensureAlternation prepares messages for Anthropic API requirements.
// System messages move to the top-level system parameter, consecutive user
// messages merge, and the sequence must start and end with a user message.
func ensureAlternation(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var userParts []string
	flush := func() {
		if len(userParts) > 0 {
			alternating = append(alternating, llm.NewUserMessage(strings.Join(userParts, "\n\n")))
			userParts = nil
		}
	}

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case llm.RoleAssistant:
			flush()
			alternating = append(alternating, *msg)
		default:
			userParts = append(userParts, msg.Content)
		}
	}
	flush()

	if len(alternating) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	if alternating[0].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", alternating[0].Role)
	}
	for i := 1; i < len(alternating); i++ {
		if alternating[i].Role == alternating[i-1].Role {
			return "", nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, alternating[i].Role)
		}
	}
	if last := alternating[len(alternating)-1]; last.Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", last.Role)
	}

	return strings.Join(systemParts, "\n\n"), alternating, nil
}

func (c *ClaudeClient) params(in *llm.CompletionRequest) (anthropic.MessageNewParams, error) {
	systemPrompt, alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message alternation error")
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == llm.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	return params, nil
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	params, err := c.params(&in)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, c.classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	var text strings.Builder
	for i := range resp.Content {
		if block := &resp.Content[i]; block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return llm.CompletionResponse{
		Content:    text.String(),
		StopReason: string(resp.StopReason),
	}, nil
}

// Stream implements the llm.LLMClient interface using Messages streaming.
// Only text deltas are forwarded.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (c *ClaudeClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	params, err := c.params(&in)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	ch := make(chan llm.StreamChunk)

	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			event := stream.Current()
			variant, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			delta, ok := variant.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			if !llm.Send(ctx, ch, llm.StreamChunk{Content: delta.Text}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			llm.Send(ctx, ch, llm.StreamChunk{Error: c.classifyError(err)})
			return
		}
		llm.Send(ctx, ch, llm.StreamChunk{Done: true})
	}()

	return ch, nil
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

func (c *ClaudeClient) classifyError(err error) *llmerrors.Error {
	status := 0
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return llmerrors.Classify("anthropic", err, status)
}
