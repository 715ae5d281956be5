package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// tagMiddleware decorates Complete replies so call order is visible in the output.
func tagMiddleware(tag string) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err
				}
				resp.Content = tag + "(" + resp.Content + ")"
				return resp, nil
			},
			next.Stream,
			next.GetModelName,
		)
	}
}

func TestWrapClient(t *testing.T) {
	var completeCalled, streamCalled bool

	client := WrapClient(
		func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			completeCalled = true
			return CompletionResponse{Content: "wrapped"}, nil
		},
		func(_ context.Context, _ CompletionRequest) (<-chan StreamChunk, error) {
			streamCalled = true
			ch := make(chan StreamChunk)
			close(ch)
			return ch, nil
		},
		func() string { return "deployment-x" },
	)

	ctx := context.Background()
	req := NewCompletionRequest([]CompletionMessage{NewUserMessage("plan this")})

	resp, err := client.Complete(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !completeCalled || resp.Content != "wrapped" {
		t.Errorf("Complete not delegated, got %q", resp.Content)
	}

	if _, err := client.Stream(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !streamCalled {
		t.Error("Stream not delegated")
	}

	if client.GetModelName() != "deployment-x" {
		t.Errorf("expected deployment-x, got %q", client.GetModelName())
	}
}

func TestChainOrder(t *testing.T) {
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{Content: "base"}, nil
		},
	}

	// Chain(base, a, b, c) runs a -> b -> c -> base, so replies unwind c first.
	client := Chain(base, tagMiddleware("a"), tagMiddleware("b"), tagMiddleware("c"))

	resp, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("x")}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "a(b(c(base)))"; resp.Content != want {
		t.Errorf("expected %q, got %q", want, resp.Content)
	}
}

func TestChainRequestModification(t *testing.T) {
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{Content: fmt.Sprintf("temp=%.1f", req.Temperature)}, nil
		},
	}

	forceTemp := func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				req.Temperature = 0.1
				return next.Complete(ctx, req)
			},
			next.Stream,
			next.GetModelName,
		)
	}

	resp, err := Chain(base, forceTemp).Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("x")}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "temp=0.1" {
		t.Errorf("expected temp=0.1, got %q", resp.Content)
	}
}

func TestChainErrorPassthrough(t *testing.T) {
	boom := errors.New("transport down")
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{}, boom
		},
	}

	_, err := Chain(base, tagMiddleware("a")).Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("x")}))
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped transport error, got %v", err)
	}
}

func TestChainNoMiddlewares(t *testing.T) {
	base := &mockLLMClient{}
	if Chain(base) != LLMClient(base) {
		t.Error("Chain without middlewares should return the base client")
	}
	if Chain(base, tagMiddleware("a")).GetModelName() != "mock-model" {
		t.Error("model name should propagate through middleware")
	}
}
