// Package openaichat implements llm.LLMClient on the Chat Completions API using the
// official OpenAI Go package. It serves both Azure AI model deployments and OpenAI.
package openaichat

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"openswe/pkg/agent/llm"
	"openswe/pkg/agent/llmerrors"
)

// Client wraps the official OpenAI client to implement llm.LLMClient.
type Client struct {
	client   openai.Client
	model    string
	provider string
}

// NewAzureClient targets an Azure AI inference endpoint. The deployment name is
// sent as the model; the key travels in the api-key header and api-version as a
// query parameter.
func NewAzureClient(endpoint, apiKey, apiVersion, deployment string) llm.LLMClient {
	opts := []option.RequestOption{
		option.WithBaseURL(normalizeBaseURL(endpoint)),
		option.WithAPIKey(apiKey),
		option.WithHeader("api-key", apiKey),
		option.WithMaxRetries(0),
	}
	if apiVersion != "" {
		opts = append(opts, option.WithQuery("api-version", apiVersion))
	}
	return &Client{
		client:   openai.NewClient(opts...),
		model:    deployment,
		provider: "azure",
	}
}

// NewOpenAIClient targets api.openai.com (or baseURL when non-empty).
func NewOpenAIClient(apiKey, model, baseURL string) llm.LLMClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(normalizeBaseURL(baseURL)))
	}
	return &Client{
		client:   openai.NewClient(opts...),
		model:    model,
		provider: "openai",
	}
}

// normalizeBaseURL makes relative request paths resolve under the endpoint.
func normalizeBaseURL(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return endpoint
}

func (c *Client) params(in *llm.CompletionRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    convertMessages(in.Messages),
		Temperature: openai.Float(float64(in.Temperature)),
	}
	if in.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(in.MaxTokens))
	}
	return params
}

func convertMessages(messages []llm.CompletionMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := in.Validate(); err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "invalid request")
	}

	resp, err := c.client.Chat.Completions.New(ctx, c.params(&in))
	if err != nil {
		return llm.CompletionResponse{}, c.classifyError(err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no choices in chat completion")
	}

	choice := resp.Choices[0]
	return llm.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
	}, nil
}

// Stream implements the llm.LLMClient interface with server-sent events.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	if err := in.Validate(); err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "invalid request")
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(&in))
	ch := make(chan llm.StreamChunk)

	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !llm.Send(ctx, ch, llm.StreamChunk{Content: delta}) {
					return
				}
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

// GetModelName returns the deployment or model name for this client.
func (c *Client) GetModelName() string {
	return c.model
}

func (c *Client) classifyError(err error) *llmerrors.Error {
	status := 0
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return llmerrors.Classify(c.provider, err, status)
}
