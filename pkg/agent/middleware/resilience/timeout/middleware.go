// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"openswe/pkg/agent/llm"
)

// Middleware bounds every request by duration. A non-positive duration returns
// the client unchanged.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if duration <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			// The deadline covers the whole stream, so cancel runs when the
			// forwarded channel closes rather than when Stream returns.
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				in, err := next.Stream(timeoutCtx, req)
				if err != nil {
					cancel()
					return nil, err //nolint:wrapcheck // pass through unchanged
				}

				out := make(chan llm.StreamChunk)
				go func() {
					defer cancel()
					defer close(out)
					for chunk := range in {
						if !llm.Send(ctx, out, chunk) {
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
