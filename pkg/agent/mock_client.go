package agent

import (
	"context"
	"fmt"
	"sync"

	"openswe/pkg/agent/llm"
)

// MockLLMClient replays scripted replies in order. An error at index i (when
// non-nil) is returned instead of the reply at the same index. Stream splits a
// reply into chunks of ChunkSize bytes. Safe for concurrent use.
type MockLLMClient struct {
	mu        sync.Mutex
	model     string
	responses []llm.CompletionResponse
	errors    []error
	index     int
	requests  []llm.CompletionRequest

	ChunkSize int
}

// NewMockLLMClient creates a new mock client with predefined responses.
func NewMockLLMClient(responses []llm.CompletionResponse, errs []error) *MockLLMClient {
	return &MockLLMClient{
		model:     "mock-model",
		responses: responses,
		errors:    errs,
		ChunkSize: 8,
	}
}

// NewScriptedClient is a shorthand for a mock that answers with replies.
func NewScriptedClient(replies ...string) *MockLLMClient {
	responses := make([]llm.CompletionResponse, len(replies))
	for i, r := range replies {
		responses[i] = llm.CompletionResponse{Content: r, StopReason: "stop"}
	}
	return NewMockLLMClient(responses, nil)
}

// next records the request and returns the scripted result for this call.
//
//nolint:gocritic // CompletionRequest copied into history
func (m *MockLLMClient) next(req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	i := m.index
	m.index++

	if i < len(m.errors) && m.errors[i] != nil {
		return llm.CompletionResponse{}, m.errors[i]
	}
	if i >= len(m.responses) {
		return llm.CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}
	return m.responses[i], nil
}

// Complete returns the next predefined response or error.
//
//nolint:gocritic // matches interface
func (m *MockLLMClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	return m.next(req)
}

// Stream delivers the next predefined response in chunks.
//
//nolint:gocritic // matches interface
func (m *MockLLMClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}

	size := m.ChunkSize
	if size <= 0 {
		size = len(resp.Content) + 1
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		content := resp.Content
		for len(content) > 0 {
			n := min(size, len(content))
			if !llm.Send(ctx, ch, llm.StreamChunk{Content: content[:n]}) {
				return
			}
			content = content[n:]
		}
		llm.Send(ctx, ch, llm.StreamChunk{Done: true})
	}()
	return ch, nil
}

// GetModelName returns the mock model name.
func (m *MockLLMClient) GetModelName() string {
	return m.model
}

// Requests returns a copy of every request received so far.
func (m *MockLLMClient) Requests() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.CompletionRequest(nil), m.requests...)
}

// Calls reports how many requests were made.
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
