package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openswe/pkg/agent/llm"
	"openswe/pkg/agent/llmerrors"
)

func TestEnsureAlternation(t *testing.T) {
	tests := []struct {
		name         string
		input        []llm.CompletionMessage
		expectSystem string
		expectMsgLen int
		errContains  string
	}{
		{
			name:        "empty messages",
			input:       []llm.CompletionMessage{},
			errContains: "message list cannot be empty",
		},
		{
			name: "system message extracted",
			input: []llm.CompletionMessage{
				llm.NewSystemMessage("You are a manager agent"),
				llm.NewUserMessage("Request: build a CLI"),
			},
			expectSystem: "You are a manager agent",
			expectMsgLen: 1,
		},
		{
			name: "multiple system messages concatenated",
			input: []llm.CompletionMessage{
				llm.NewSystemMessage("one"),
				llm.NewSystemMessage("two"),
				llm.NewUserMessage("go"),
			},
			expectSystem: "one\n\ntwo",
			expectMsgLen: 1,
		},
		{
			name: "consecutive user messages merged",
			input: []llm.CompletionMessage{
				llm.NewUserMessage("a"),
				llm.NewUserMessage("b"),
			},
			expectMsgLen: 1,
		},
		{
			name: "only system",
			input: []llm.CompletionMessage{
				llm.NewSystemMessage("sys"),
			},
			errContains: "at least one non-system message",
		},
		{
			name: "starts with assistant",
			input: []llm.CompletionMessage{
				llm.NewAssistantMessage("hi"),
				llm.NewUserMessage("go"),
			},
			errContains: "first message must be user",
		},
		{
			name: "ends with assistant",
			input: []llm.CompletionMessage{
				llm.NewUserMessage("hello"),
				llm.NewAssistantMessage("hi"),
			},
			errContains: "last message must be user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, msgs, err := ensureAlternation(tt.input)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectSystem, system)
			assert.Len(t, msgs, tt.expectMsgLen)
		})
	}
}

func managerRequest() llm.CompletionRequest {
	return llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("You are a manager agent."),
		llm.NewUserMessage("Has plan: false"),
	})
}

func TestCompleteJoinsTextBlocks(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"<think>no plan</think>"},{"type":"text","text":"planner"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`)
	}))
	defer srv.Close()

	client := NewClaudeClient("k", "claude-test", srv.URL)
	resp, err := client.Complete(context.Background(), managerRequest())
	require.NoError(t, err)
	assert.Equal(t, "<think>no plan</think>planner", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "claude-test", body["model"])
	assert.NotNil(t, body["system"])
}

func TestCompleteRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	_, err := NewClaudeClient("k", "", srv.URL).Complete(context.Background(), managerRequest())
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeRateLimit), "got %v", err)
}

func TestStreamForwardsTextDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"plan", "ner"} {
			fmt.Fprintf(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":%q}}\n\n", text)
		}
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	ch, err := NewClaudeClient("k", "", srv.URL).Stream(context.Background(), managerRequest())
	require.NoError(t, err)
	text, err := llm.Collect(context.Background(), ch, nil)
	require.NoError(t, err)
	assert.Equal(t, "planner", text)
}

func TestDefaultModel(t *testing.T) {
	assert.Equal(t, DefaultModel, NewClaudeClient("k", "", "").GetModelName())
}
