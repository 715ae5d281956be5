package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"openswe/pkg/agent/llm"
	"openswe/pkg/agent/llmerrors"
	"openswe/pkg/logx"
	"openswe/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor counts tokens with tiktoken; providers differ in how
// they report usage, so one estimate keeps roles comparable.
//
//nolint:gocritic // matches UsageExtractor
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	return utils.CountTokens(req.PromptText()), utils.CountTokens(resp.Content)
}

// Middleware returns a middleware function that records metrics for LLM operations
// made on behalf of role. It tracks latency, token usage, and error types.
func Middleware(recorder Recorder, role string, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		observe := func(req llm.CompletionRequest, resp llm.CompletionResponse, err error, duration time.Duration) {
			var promptTokens, completionTokens int
			if err == nil {
				promptTokens, completionTokens = usageExtractor(req, resp)
			}
			recorder.ObserveRequest(Request{
				Role:             role,
				Model:            next.GetModelName(),
				PromptTokens:     promptTokens,
				CompletionTokens: completionTokens,
				Success:          err == nil,
				ErrorType:        getErrorType(err),
				Duration:         duration,
			})

			if logger != nil {
				status := statusSuccess
				if err != nil {
					status = statusError
				}
				logger.Info("LLM request: role=%s model=%s tokens=%d+%d=%d status=%s duration=%dms",
					role, next.GetModelName(), promptTokens, completionTokens, promptTokens+completionTokens,
					status, duration.Milliseconds())
			}
		}

		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				observe(req, resp, err, time.Since(start))
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			// Streams are observed once they end so token counts cover the whole reply.
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()
				in, err := next.Stream(ctx, req)
				if err != nil {
					observe(req, llm.CompletionResponse{}, err, time.Since(start))
					return nil, err //nolint:wrapcheck // Middleware should pass through errors unchanged
				}

				out := make(chan llm.StreamChunk)
				go func() {
					defer close(out)
					var text strings.Builder
					var streamErr error
					defer func() {
						observe(req, llm.CompletionResponse{Content: text.String()}, streamErr, time.Since(start))
					}()

					for chunk := range in {
						text.WriteString(chunk.Content)
						if chunk.Error != nil {
							streamErr = chunk.Error
						}
						if !llm.Send(ctx, out, chunk) {
							streamErr = ctx.Err()
							return
						}
					}
				}()
				return out, nil
			},
			next.GetModelName,
		)
	}
}

// getErrorType classifies errors for metrics labeling.
func getErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.Type.String()
	}
	return "unknown"
}
