package google

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"openswe/pkg/agent/llm"
	"openswe/pkg/agent/llmerrors"
)

func TestNewGeminiClient(t *testing.T) {
	client := NewGeminiClient("test-key", "gemini-2.5-pro", "")
	assert.Equal(t, "gemini-2.5-pro", client.GetModelName())

	assert.Equal(t, DefaultModel, NewGeminiClient("k", "", "").GetModelName())
}

func TestConvertMessagesToGemini(t *testing.T) {
	tests := []struct {
		name             string
		messages         []llm.CompletionMessage
		expectSystem     string
		expectContentLen int
		errContains      string
	}{
		{
			name:        "empty messages",
			messages:    []llm.CompletionMessage{},
			errContains: "message list cannot be empty",
		},
		{
			name: "system message extracted",
			messages: []llm.CompletionMessage{
				llm.NewSystemMessage("You are an expert programmer."),
				llm.NewUserMessage("Plan: 1. write fib"),
			},
			expectSystem:     "You are an expert programmer.",
			expectContentLen: 1,
		},
		{
			name: "assistant maps to model",
			messages: []llm.CompletionMessage{
				llm.NewUserMessage("a"),
				llm.NewAssistantMessage("b"),
				llm.NewUserMessage("c"),
			},
			expectContentLen: 3,
		},
		{
			name: "system only",
			messages: []llm.CompletionMessage{
				llm.NewSystemMessage("sys"),
			},
			errContains: "at least one non-system message",
		},
		{
			name: "unknown role",
			messages: []llm.CompletionMessage{
				{Role: "tool", Content: "x"},
			},
			errContains: "unsupported message role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contents, system, err := convertMessagesToGemini(tt.messages)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectSystem, system)
			assert.Len(t, contents, tt.expectContentLen)
		})
	}

	contents, _, err := convertMessagesToGemini([]llm.CompletionMessage{
		llm.NewUserMessage("a"),
		llm.NewAssistantMessage("b"),
	})
	require.NoError(t, err)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
}

func TestGetStopReason(t *testing.T) {
	assert.Equal(t, "unknown", getStopReason(nil))
	assert.Equal(t, "unknown", getStopReason(&genai.GenerateContentResponse{}))
	assert.Equal(t, "max_tokens", getStopReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}},
	}))
	assert.Equal(t, "stop", getStopReason(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{}},
	}))
}

func TestClassifyError(t *testing.T) {
	err := classifyError(genai.APIError{Code: 429, Message: "quota"})
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeRateLimit))

	err = classifyError(errors.New("boom"))
	assert.Equal(t, "google", err.Provider)
}
