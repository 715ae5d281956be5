// Package google provides Google Gemini client implementation for LLM interface.
package google

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"openswe/pkg/agent/llm"
	"openswe/pkg/agent/llmerrors"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// GeminiClient wraps the Google GenAI client to implement llm.LLMClient interface.
type GeminiClient struct {
	mu      sync.Mutex
	client  *genai.Client
	apiKey  string
	model   string
	baseURL string
}

// NewGeminiClient creates a Gemini client. The underlying genai client needs a
// context, so it is built on first use.
func NewGeminiClient(apiKey, model, baseURL string) llm.LLMClient {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
	}
}

func (g *GeminiClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}
	g.client = client
	return client, nil
}

func (g *GeminiClient) prepare(in *llm.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	contents, systemInstruction, err := convertMessagesToGemini(in.Messages)
	if err != nil {
		return nil, nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion error")
	}

	temperature := in.Temperature
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if in.MaxTokens > 0 {
		//nolint:gosec // bounded by configuration
		config.MaxOutputTokens = int32(in.MaxTokens)
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	return contents, config, nil
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := g.ensureClient(ctx)
	if err != nil {
		return llm.CompletionResponse{}, err
	}
	contents, config, err := g.prepare(&in)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	return llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: getStopReason(result),
	}, nil
}

// Stream implements the llm.LLMClient interface on GenerateContentStream.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (g *GeminiClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	client, err := g.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	contents, config, err := g.prepare(&in)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for result, err := range client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if err != nil {
				llm.Send(ctx, ch, llm.StreamChunk{Error: classifyError(err)})
				return
			}
			if text := result.Text(); text != "" {
				if !llm.Send(ctx, ch, llm.StreamChunk{Content: text}) {
					return
				}
			}
		}
		llm.Send(ctx, ch, llm.StreamChunk{Done: true})
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// convertMessagesToGemini converts messages to Gemini contents. System messages
// become the system instruction; assistant turns use the "model" role.
func convertMessagesToGemini(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var contents []*genai.Content

	for i := range messages {
		msg := &messages[i]

		var role string
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, msg.Content)
			continue
		case llm.RoleUser:
			role = genai.RoleUser
		case llm.RoleAssistant:
			role = genai.RoleModel
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	if len(contents) == 0 {
		return nil, "", fmt.Errorf("must have at least one non-system message")
	}
	return contents, strings.Join(systemParts, "\n\n"), nil
}

// getStopReason extracts the finish reason of the first candidate.
func getStopReason(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 {
		return "unknown"
	}
	if reason := result.Candidates[0].FinishReason; reason != "" {
		return strings.ToLower(string(reason))
	}
	return "stop"
}

func classifyError(err error) *llmerrors.Error {
	status := 0
	if apiErr, ok := err.(genai.APIError); ok { //nolint:errorlint // genai returns the value type
		status = apiErr.Code
	}
	return llmerrors.Classify("google", err, status)
}
