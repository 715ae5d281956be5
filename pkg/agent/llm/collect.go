package llm

import (
	"context"
	"fmt"
	"strings"
)

// StreamObserver receives every fragment of a streamed reply as it arrives.
// It is for display only; the assembled text is what callers act on.
type StreamObserver interface {
	OnChunk(content string)
	OnDone()
}

// ObserverFunc adapts a plain function to StreamObserver.
type ObserverFunc func(content string)

func (f ObserverFunc) OnChunk(content string) { f(content) }
func (f ObserverFunc) OnDone()                {}

// Collect drains a stream into a single string, forwarding fragments to observer
// (which may be nil). A chunk error or context cancellation aborts collection and
// returns the text received so far together with the error.
func Collect(ctx context.Context, ch <-chan StreamChunk, observer StreamObserver) (string, error) {
	var sb strings.Builder
	defer func() {
		if observer != nil {
			observer.OnDone()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return sb.String(), fmt.Errorf("stream aborted: %w", ctx.Err())
		case chunk, ok := <-ch:
			if !ok {
				return sb.String(), nil
			}
			if chunk.Error != nil {
				return sb.String(), chunk.Error
			}
			if chunk.Content != "" {
				sb.WriteString(chunk.Content)
				if observer != nil {
					observer.OnChunk(chunk.Content)
				}
			}
			if chunk.Done {
				return sb.String(), nil
			}
		}
	}
}

// Send delivers a chunk unless ctx is done. Provider goroutines use it so they
// never block forever on an abandoned consumer.
func Send(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
