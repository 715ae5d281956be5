// Package logging provides logging middleware for LLM clients.
package logging

import (
	"context"
	"strings"

	"openswe/pkg/agent/llm"
	"openswe/pkg/agent/llmerrors"
	"openswe/pkg/logx"
)

const maxLoggedMessageChars = 2000

// EmptyResponseLoggingMiddleware logs the prompt that produced an empty reply and
// passes the result through unchanged. An empty reply is not an error for the
// workflow: the router falls back and the manifest extractor degrades to zero files.
func EmptyResponseLoggingMiddleware(role string) llm.Middleware {
	logger := logx.NewLogger("llm-" + role)

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) ||
					(err == nil && strings.TrimSpace(resp.Content) == "") {
					logEmptyResponse(logger, next.GetModelName(), &req)
				}
				//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
				return resp, err
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				return next.Stream(ctx, req)
			},
			next.GetModelName,
		)
	}
}

func logEmptyResponse(logger *logx.Logger, model string, req *llm.CompletionRequest) {
	logger.Warn("empty response from %s (temperature=%v max_tokens=%d)", model, req.Temperature, req.MaxTokens)
	for i := range req.Messages {
		msg := &req.Messages[i]
		content := msg.Content
		if len(content) > maxLoggedMessageChars {
			content = content[:maxLoggedMessageChars] + " [truncated]"
		}
		logger.Debug("message[%d] %s: %s", i, msg.Role, content)
	}
}
