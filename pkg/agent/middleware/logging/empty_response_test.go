package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openswe/pkg/agent/llm"
	"openswe/pkg/logx"
)

type replyClient struct{ reply string }

//nolint:gocritic // matches interface
func (r replyClient) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{Content: r.reply}, nil
}

//nolint:gocritic // matches interface
func (r replyClient) Stream(context.Context, llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, nil
}

func (r replyClient) GetModelName() string { return "m" }

func TestEmptyResponseIsLoggedAndPassedThrough(t *testing.T) {
	var buf bytes.Buffer
	logx.SetOutput(&buf)
	prev := logx.GetLevel()
	logx.SetLevel(logx.LevelWarn)
	t.Cleanup(func() {
		logx.SetOutput(nil)
		logx.SetLevel(prev)
	})

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})

	client := EmptyResponseLoggingMiddleware("manager")(replyClient{reply: "  "})
	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "  ", resp.Content)
	assert.Contains(t, buf.String(), "[llm-manager] WARN: empty response from m")

	buf.Reset()
	client = EmptyResponseLoggingMiddleware("manager")(replyClient{reply: "planner"})
	_, err = client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}
