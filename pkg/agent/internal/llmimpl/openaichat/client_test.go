package openaichat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openswe/pkg/agent/llm"
	"openswe/pkg/agent/llmerrors"
)

func plannerRequest() llm.CompletionRequest {
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("You are an expert software planning agent."),
		llm.NewUserMessage("create a fibonacci function"),
	})
	req.Temperature = llm.TemperaturePlanner
	return req
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "https://x.services.ai.azure.com/models/", normalizeBaseURL(" https://x.services.ai.azure.com/models "))
	assert.Equal(t, "https://x/", normalizeBaseURL("https://x/"))
}

func TestConvertMessages(t *testing.T) {
	msgs := convertMessages([]llm.CompletionMessage{
		llm.NewSystemMessage("sys"),
		llm.NewUserMessage("user"),
		llm.NewAssistantMessage("assistant"),
	})
	require.Len(t, msgs, 3)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	assert.NotNil(t, msgs[2].OfAssistant)
}

func TestAzureCompleteSendsDeploymentHeadersAndVersion(t *testing.T) {
	var gotPath, gotVersion, gotKey string
	var body map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("api-key")
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"DeepSeek-R1-0528",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"<think>ok</think>1. Write fib"}}]}`)
	}))
	defer srv.Close()

	client := NewAzureClient(srv.URL, "secret", "2024-02-15-preview", "DeepSeek-R1-0528")
	resp, err := client.Complete(context.Background(), plannerRequest())
	require.NoError(t, err)

	assert.Equal(t, "<think>ok</think>1. Write fib", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "2024-02-15-preview", gotVersion)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "DeepSeek-R1-0528", body["model"])
	assert.Equal(t, "DeepSeek-R1-0528", client.GetModelName())
}

func TestCompleteClassifiesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	client := NewAzureClient(srv.URL, "wrong", "", "dep")
	_, err := client.Complete(context.Background(), plannerRequest())
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth), "got %v", err)
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient("k", "m", srv.URL).Complete(context.Background(), plannerRequest())
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse), "got %v", err)
}

func TestStreamDeliversDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"<think>", "plan", "</think>", "planner"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewOpenAIClient("k", "m", srv.URL)
	ch, err := client.Stream(context.Background(), plannerRequest())
	require.NoError(t, err)

	var parts []string
	text, err := llm.Collect(context.Background(), ch, llm.ObserverFunc(func(s string) { parts = append(parts, s) }))
	require.NoError(t, err)
	assert.Equal(t, "<think>plan</think>planner", text)
	assert.Equal(t, 4, len(parts))
	assert.False(t, strings.Contains(text, "[DONE]"))
}

func TestInvalidRequestRejectedBeforeSend(t *testing.T) {
	client := NewOpenAIClient("k", "m", "http://127.0.0.1:1")
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt), "got %v", err)
}
