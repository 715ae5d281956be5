// Package ollama provides Ollama client implementation for LLM interface.
// Ollama is a local LLM runtime that allows running open-source models.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"openswe/pkg/agent/llm"
	"openswe/pkg/agent/llmerrors"
)

// DefaultHost is the local Ollama server address.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API client to implement llm.LLMClient interface.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewOllamaClient creates a client for model on hostURL (e.g. "http://localhost:11434").
// An unparsable host falls back to DefaultHost.
func NewOllamaClient(hostURL, model string) llm.LLMClient {
	parsedURL, err := url.Parse(hostURL)
	if err != nil || hostURL == "" {
		parsedURL, _ = url.Parse(DefaultHost)
		hostURL = DefaultHost
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		hostURL: hostURL,
	}
}

func (o *Client) chatRequest(in *llm.CompletionRequest, stream bool) (*api.ChatRequest, error) {
	messages, err := convertMessagesToOllama(in.Messages)
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion error")
	}
	options := map[string]any{
		"temperature": in.Temperature,
	}
	if in.MaxTokens > 0 {
		options["num_predict"] = in.MaxTokens
	}
	return &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}, nil
}

// Complete implements the llm.LLMClient interface. Separate thinking output is
// folded back into a leading think block so callers see one reply format.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	req, err := o.chatRequest(&in, false)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	content := response.Message.Content
	if response.Message.Thinking != "" {
		content = "<think>" + response.Message.Thinking + "</think>" + content
	}
	return llm.CompletionResponse{
		Content:    content,
		StopReason: getStopReason(&response),
	}, nil
}

// Stream implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (o *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	req, err := o.chatRequest(&in, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)

		var tags thinkTagger
		err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			text := tags.wrap(resp.Message.Thinking, resp.Message.Content)
			if text == "" {
				return nil
			}
			if !llm.Send(ctx, ch, llm.StreamChunk{Content: text}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			llm.Send(ctx, ch, llm.StreamChunk{Error: classifyError(err)})
			return
		}
		if tail := tags.close(); tail != "" {
			if !llm.Send(ctx, ch, llm.StreamChunk{Content: tail}) {
				return
			}
		}
		llm.Send(ctx, ch, llm.StreamChunk{Done: true})
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// thinkTagger brackets streamed thinking deltas with think tags.
type thinkTagger struct {
	open bool
}

func (t *thinkTagger) wrap(thinking, content string) string {
	var b strings.Builder
	if thinking != "" {
		if !t.open {
			b.WriteString("<think>")
			t.open = true
		}
		b.WriteString(thinking)
	}
	if content != "" {
		b.WriteString(t.close())
		b.WriteString(content)
	}
	return b.String()
}

func (t *thinkTagger) close() string {
	if !t.open {
		return ""
	}
	t.open = false
	return "</think>"
}

// convertMessagesToOllama converts our message format to Ollama's Message format.
func convertMessagesToOllama(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	result := make([]api.Message, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
		result = append(result, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return result, nil
}

// getStopReason converts Ollama's done_reason to our stop reason format.
func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}

	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError converts Ollama errors to our error types.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusNotFound {
			return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Ollama model not found")
		}
		return llmerrors.Classify("ollama", err, statusErr.StatusCode)
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Ollama server not reachable")
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Ollama model not found")
	default:
		return llmerrors.Classify("ollama", err, 0)
	}
}
